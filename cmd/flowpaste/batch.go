package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raaihank/flowpaste/internal/batch"
	"github.com/raaihank/flowpaste/internal/privacy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	batchIn   string
	batchOut  string
	batchRule string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Mask or reformat every record of a CSV, JSON-lines or Parquet file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		detector, err := privacy.New(cfg.Privacy, log.WithComponent("privacy").Logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pipeline := batch.NewPipeline(detector, executorFor(cfg, log), cfg.Batch, nil, log.WithComponent("batch").Logger)
		result, err := pipeline.ProcessFile(ctx, batchIn, batchOut, batch.Options{RuleID: batchRule})
		if err != nil {
			return err
		}

		if result.ProcessedFailed > 0 {
			log.Warn("Some records failed", zap.Int64("failed", result.ProcessedFailed))
		}
		return printJSON(cmd, result)
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchIn, "in", "i", "", "Input file (.csv, .json/.jsonl or .parquet)")
	batchCmd.Flags().StringVarP(&batchOut, "out", "o", "", "Output file, written in the input's format")
	batchCmd.Flags().StringVar(&batchRule, "rule", "", "Apply this rule instead of masking")
	_ = batchCmd.MarkFlagRequired("in")
	_ = batchCmd.MarkFlagRequired("out")
}
