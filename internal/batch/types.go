package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is a single input row
type Record struct {
	ID   string `parquet:"id" json:"id"`
	Text string `parquet:"text" json:"text"`
}

// OutputRecord is a processed row
type OutputRecord struct {
	ID       string `parquet:"id" json:"id"`
	Text     string `parquet:"text" json:"text"`
	PIICount int64  `parquet:"pii_count" json:"pii_count"`
}

// Result summarizes a processed file
type Result struct {
	TotalRecords    int64          `json:"total_records"`
	ProcessedOK     int64          `json:"processed_ok"`
	ProcessedFailed int64          `json:"processed_failed"`
	Counts          map[string]int `json:"counts"`
	Duration        time.Duration  `json:"duration"`
	Errors          []string       `json:"errors,omitempty"`
}

// Options selects what is done to each text. With an empty RuleID the
// text is masked.
type Options struct {
	RuleID string
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// maxRecordErrors caps Result.Errors
const maxRecordErrors = 100
