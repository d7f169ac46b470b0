// Package logger provides the structured logging interface used across tweetharvest.
//
// It wraps zerolog behind a small Logger interface so components receive a
// logger through their constructors and tests can swap in TestLogger or the
// no-op logger.
//
// Console output is colored text by default; setting the format to "json"
// emits one JSON object per line. When a log file is configured every entry
// is also appended there as JSON.
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("batch", 3).Info("Batch resolved")
//	logger.LogProgress(log, captured, total)
package logger
