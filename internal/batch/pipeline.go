// Package batch masks or reformats every text of a CSV, JSON-lines or
// Parquet file with the same privacy and rule engines the API uses.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/raaihank/flowpaste/internal/config"
	"github.com/raaihank/flowpaste/internal/metrics"
	"github.com/raaihank/flowpaste/internal/privacy"
	"github.com/raaihank/flowpaste/internal/rules"
	"go.uber.org/zap"
)

// Masker is the part of the privacy detector the pipeline needs
type Masker interface {
	Scan(text string) privacy.ScanResult
	Mask(text string) privacy.MaskResult
}

// RuleApplier runs a registered rule
type RuleApplier interface {
	Lookup(id string) (*rules.CompiledRule, bool)
	Apply(text, id string) (string, error)
}

// Pipeline processes record files in batches
type Pipeline struct {
	masker  Masker
	rules   RuleApplier
	config  config.BatchConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewPipeline creates a pipeline. metrics may be nil.
func NewPipeline(masker Masker, applier RuleApplier, cfg config.BatchConfig, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	return &Pipeline{
		masker:  masker,
		rules:   applier,
		config:  cfg,
		logger:  logger,
		metrics: m,
	}
}

type outcome struct {
	record OutputRecord
	counts map[privacy.PIIType]int
	err    error
}

// ProcessFile reads inPath and writes the processed records to outPath in
// the input's format
func (p *Pipeline) ProcessFile(ctx context.Context, inPath, outPath string, opts Options) (*Result, error) {
	if opts.RuleID != "" && p.rules == nil {
		return nil, fmt.Errorf("rule %s requested but no rule executor configured", opts.RuleID)
	}
	if opts.RuleID != "" {
		if _, ok := p.rules.Lookup(opts.RuleID); !ok {
			return nil, &rules.RuleError{RuleID: opts.RuleID, Err: rules.ErrRuleNotFound}
		}
	}

	if err := distinctPaths(inPath, outPath); err != nil {
		return nil, err
	}

	format := DetectFileFormat(inPath)
	p.logger.Info("Starting batch pipeline",
		zap.String("input", inPath),
		zap.String("output", outPath),
		zap.String("format", string(format)),
		zap.String("rule", opts.RuleID),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	reader, err := openReader(inPath, format)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	writer, err := createWriter(outPath, format)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{Counts: make(map[string]int)}

	err = p.processBatches(ctx, reader, writer, opts, result)
	if closeErr := writer.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close output: %w", closeErr)
	}
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	p.logger.Info("Batch pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// distinctPaths rejects an output that would truncate the input
func distinctPaths(inPath, outPath string) error {
	in, err := filepath.Abs(inPath)
	if err != nil {
		return fmt.Errorf("failed to resolve input path: %w", err)
	}
	out, err := filepath.Abs(outPath)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}
	if in == out {
		return fmt.Errorf("input and output are the same file: %s", in)
	}
	if inInfo, err := os.Stat(in); err == nil {
		if outInfo, err := os.Stat(out); err == nil && os.SameFile(inInfo, outInfo) {
			return fmt.Errorf("input and output are the same file: %s", in)
		}
	}
	return nil
}

func (p *Pipeline) processBatches(ctx context.Context, reader recordReader, writer recordWriter, opts Options, result *Result) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := reader.Next(p.config.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		outcomes := p.processBatch(ctx, batch, opts)
		if err := ctx.Err(); err != nil {
			return err
		}

		out := make([]OutputRecord, len(outcomes))
		for i, o := range outcomes {
			out[i] = o.record
			result.TotalRecords++
			for t, n := range o.counts {
				result.Counts[string(t)] += n
			}
			if o.err != nil {
				result.ProcessedFailed++
				if len(result.Errors) < maxRecordErrors {
					result.Errors = append(result.Errors, fmt.Sprintf("record %s: %v", o.record.ID, o.err))
				}
				p.observe("failed")
				continue
			}
			result.ProcessedOK++
			p.observe("ok")
		}

		if err := writer.Write(out); err != nil {
			return err
		}

		p.logger.Debug("Batch processed",
			zap.Int("batch_size", len(batch)),
			zap.Int64("records_processed", result.TotalRecords))
	}
}

// processBatch fans the batch out over the worker pool. Output order
// matches input order. On cancellation the tail of the batch is left
// unprocessed and the caller discards it.
func (p *Pipeline) processBatch(ctx context.Context, batch []Record, opts Options) []outcome {
	outcomes := make([]outcome, len(batch))
	jobs := make(chan int)

	workers := p.config.WorkerCount
	if workers > len(batch) {
		workers = len(batch)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = p.processRecord(batch[i], opts)
			}
		}()
	}

feed:
	for i := range batch {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

func (p *Pipeline) processRecord(rec Record, opts Options) outcome {
	if opts.RuleID == "" {
		masked := p.masker.Mask(rec.Text)
		return outcome{
			record: OutputRecord{
				ID:       rec.ID,
				Text:     masked.Masked,
				PIICount: int64(len(masked.ScanResult.Items)),
			},
			counts: masked.ScanResult.Counts(),
		}
	}

	text, err := p.rules.Apply(rec.Text, opts.RuleID)
	if err != nil {
		// Keep the record, unchanged
		text = rec.Text
	}
	scan := p.masker.Scan(text)
	return outcome{
		record: OutputRecord{
			ID:       rec.ID,
			Text:     text,
			PIICount: int64(len(scan.Items)),
		},
		counts: scan.Counts(),
		err:    err,
	}
}

func (p *Pipeline) observe(result string) {
	if p.metrics != nil {
		p.metrics.BatchRecords.WithLabelValues(result).Inc()
	}
}
