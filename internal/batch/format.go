package batch

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"
)

type recordReader interface {
	// Next returns up to max records; an empty slice means end of input
	Next(max int) ([]Record, error)
	Close() error
}

type recordWriter interface {
	Write(records []OutputRecord) error
	Close() error
}

func openReader(path string, format FileFormat) (recordReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	switch format {
	case FormatCSV:
		r, err := newCSVReader(file)
		if err != nil {
			file.Close()
			return nil, err
		}
		return r, nil
	case FormatJSON:
		return &jsonReader{file: file, decoder: json.NewDecoder(file)}, nil
	case FormatParquet:
		return &parquetReader{file: file, reader: parquet.NewReader(file)}, nil
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

func createWriter(path string, format FileFormat) (recordWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	switch format {
	case FormatCSV:
		w := csv.NewWriter(file)
		if err := w.Write([]string{"id", "text", "pii_count"}); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
		return &csvWriter{file: file, writer: w}, nil
	case FormatJSON:
		return &jsonWriter{file: file, encoder: json.NewEncoder(file)}, nil
	case FormatParquet:
		return &parquetWriter{file: file, writer: parquet.NewGenericWriter[OutputRecord](file)}, nil
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

// CSV: a header row naming at least a "text" column. Without an "id"
// column the 1-based row number is used.
type csvReader struct {
	file    *os.File
	reader  *csv.Reader
	idCol   int
	textCol int
	row     int
}

func newCSVReader(file *os.File) (*csvReader, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	r := &csvReader{file: file, reader: reader, idCol: -1, textCol: -1}
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "id":
			r.idCol = i
		case "text":
			r.textCol = i
		}
	}
	if r.textCol < 0 {
		return nil, fmt.Errorf("CSV header has no text column: %v", header)
	}
	return r, nil
}

func (r *csvReader) Next(max int) ([]Record, error) {
	var batch []Record
	for len(batch) < max {
		fields, err := r.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch, fmt.Errorf("failed to read CSV record: %w", err)
		}
		r.row++
		if r.textCol >= len(fields) {
			return batch, fmt.Errorf("CSV row %d has %d fields", r.row, len(fields))
		}

		rec := Record{ID: strconv.Itoa(r.row), Text: fields[r.textCol]}
		if r.idCol >= 0 && r.idCol < len(fields) {
			rec.ID = fields[r.idCol]
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

func (r *csvReader) Close() error { return r.file.Close() }

type csvWriter struct {
	file   *os.File
	writer *csv.Writer
}

func (w *csvWriter) Write(records []OutputRecord) error {
	for _, rec := range records {
		if err := w.writer.Write([]string{rec.ID, rec.Text, strconv.FormatInt(rec.PIICount, 10)}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

func (w *csvWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// JSON lines: one object per line
type jsonReader struct {
	file    *os.File
	decoder *json.Decoder
}

func (r *jsonReader) Next(max int) ([]Record, error) {
	var batch []Record
	for len(batch) < max {
		var rec Record
		err := r.decoder.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch, fmt.Errorf("failed to read JSON record: %w", err)
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

func (r *jsonReader) Close() error { return r.file.Close() }

type jsonWriter struct {
	file    *os.File
	encoder *json.Encoder
}

func (w *jsonWriter) Write(records []OutputRecord) error {
	for i := range records {
		if err := w.encoder.Encode(&records[i]); err != nil {
			return fmt.Errorf("failed to write JSON record: %w", err)
		}
	}
	return nil
}

func (w *jsonWriter) Close() error { return w.file.Close() }

type parquetReader struct {
	file   *os.File
	reader *parquet.Reader
}

func (r *parquetReader) Next(max int) ([]Record, error) {
	var batch []Record
	for len(batch) < max {
		var rec Record
		err := r.reader.Read(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch, fmt.Errorf("failed to read Parquet record: %w", err)
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

func (r *parquetReader) Close() error {
	r.reader.Close()
	return r.file.Close()
}

type parquetWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[OutputRecord]
}

func (w *parquetWriter) Write(records []OutputRecord) error {
	if _, err := w.writer.Write(records); err != nil {
		return fmt.Errorf("failed to write Parquet records: %w", err)
	}
	return nil
}

func (w *parquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to finalize Parquet file: %w", err)
	}
	return w.file.Close()
}
