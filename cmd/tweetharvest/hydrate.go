package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"tweetharvest/pkg/hydrator"
	"tweetharvest/pkg/input"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/storage"
)

type hydrateOptions struct {
	global    *globalOptions
	dehydrate bool
}

// outputStem is the input path without its extension; derived output
// names are built on it.
func outputStem(inputPath string) string {
	return strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
}

func runHydrate(cmd *cobra.Command, opts *hydrateOptions, inputPath string) error {
	ctx := cmd.Context()
	a, err := setup(cmd, opts.global)
	if err != nil {
		return err
	}
	cfg := a.cfg

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	client, err := a.connect(ctx)
	if err != nil {
		return err
	}

	stem := outputStem(inputPath)
	recordPath := cfg.Output.RecordFile
	if recordPath == "" {
		recordPath = stem + "_full.json"
	}
	failurePath := cfg.Output.FailureFile
	if failurePath == "" {
		failurePath = stem + "_errors.txt"
	}

	mode := storage.Truncate
	var skip storage.Resolved
	if cfg.Hydrate.Resume {
		mode = storage.Append
		skip, err = storage.ScanResolved(recordPath, failurePath)
		if err != nil {
			return err
		}
		a.log.WithField("resolved", len(skip)).Info("Resuming from existing outputs")
	}

	records, err := storage.NewRecordWriter(recordPath, mode, cfg.Output.Sync)
	if err != nil {
		return err
	}
	var sink storage.RecordSink = records
	if cfg.Archive.DSN != "" {
		archive, err := storage.OpenPostgres(ctx, cfg.Archive.DSN, cfg.Archive.Table, cfg.Archive.MaxConns)
		if err != nil {
			records.Close()
			return fmt.Errorf("failed to open archive: %w", err)
		}
		sink = storage.MultiRecordSink{records, archive}
	}
	defer sink.Close()

	failures, err := storage.NewIDWriter(failurePath, mode, cfg.Output.Sync)
	if err != nil {
		return err
	}
	defer failures.Close()

	logger.LogComponentStart(a.log, "hydrator", map[string]interface{}{
		"input":      inputPath,
		"records":    recordPath,
		"failures":   failurePath,
		"batch_size": cfg.Hydrate.BatchSize,
		"interval":   cfg.Hydrate.Interval.String(),
		"mode":       mode.String(),
	})

	h := hydrator.New(client, sink, failures, hydrator.Options{
		TweetMode:        a.tweetMode(),
		RetryInterval:    cfg.Hydrate.RetryInterval,
		Policy:           a.retryPolicy(),
		Interval:         cfg.Hydrate.Interval,
		ProgressInterval: cfg.Hydrate.ProgressInterval,
		Skip:             skip,
		Logger:           a.log,
		Metrics:          a.metrics,
	})
	reader := input.NewBatchReader(in, cfg.Hydrate.BatchSize, cfg.Hydrate.JSONKey, a.log)
	stats, err := h.Run(ctx, reader)

	reason := "completed"
	if stats.Interrupted {
		reason = "interrupted"
	}
	if err != nil {
		reason = "failed"
	}
	logger.LogComponentStop(a.log, "hydrator", reason)

	a.console.Summary("Hydrate summary", [][2]string{
		{"Identifiers", strconv.Itoa(stats.Total)},
		{"Captured", strconv.Itoa(stats.Captured)},
		{"Failed", strconv.Itoa(stats.Failed)},
		{"Already resolved", strconv.Itoa(stats.Skipped)},
		{"Malformed lines", strconv.Itoa(reader.Skipped())},
		{"Records", recordPath},
		{"Failures", failurePath},
	})
	if err != nil {
		return err
	}
	if stats.Interrupted {
		a.console.Warning("Interrupted; run again with --resume to continue")
	}
	return nil
}

func runDehydrate(cmd *cobra.Command, opts *hydrateOptions, inputPath string) error {
	a, err := setup(cmd, opts.global)
	if err != nil {
		return err
	}
	cfg := a.cfg

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	key := cfg.Hydrate.JSONKey
	if key == "" {
		key = input.DefaultKey
	}
	outPath := cfg.Output.RecordFile
	if outPath == "" {
		outPath = fmt.Sprintf("%s_%s.txt", outputStem(inputPath), key)
	}
	out, err := storage.NewIDWriter(outPath, storage.Truncate, cfg.Output.Sync)
	if err != nil {
		return err
	}
	defer out.Close()

	stats, err := input.Extract(in, out, key, a.log)
	if err != nil {
		return err
	}

	a.console.Summary("Dehydrate summary", [][2]string{
		{"Lines", strconv.Itoa(stats.Lines)},
		{"Written", strconv.Itoa(stats.Written)},
		{"Skipped", strconv.Itoa(stats.Skipped)},
		{"Output", outPath},
	})
	return nil
}
