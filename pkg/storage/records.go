package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"tweetharvest/pkg/twitter"
)

// RecordWriter writes records as newline-delimited JSON.
type RecordWriter struct {
	*lineFile
	enc   *json.Encoder
	count int
}

// NewRecordWriter opens path for records. With sync set every record is
// fsynced as well as flushed.
func NewRecordWriter(path string, mode OpenMode, sync bool) (*RecordWriter, error) {
	lf, err := openLineFile(path, mode, sync)
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(lf.w)
	enc.SetEscapeHTML(false)
	return &RecordWriter{lineFile: lf, enc: enc}, nil
}

// WriteRecord appends one record and flushes it.
func (w *RecordWriter) WriteRecord(_ context.Context, rec twitter.Record) error {
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode record %d: %w", rec.ID, err)
	}
	w.count++
	return w.flush()
}

// Count returns the records written by this writer.
func (w *RecordWriter) Count() int {
	return w.count
}

// IDWriter writes one decimal identifier per line.
type IDWriter struct {
	*lineFile
	count int
}

// NewIDWriter opens path for identifiers.
func NewIDWriter(path string, mode OpenMode, sync bool) (*IDWriter, error) {
	lf, err := openLineFile(path, mode, sync)
	if err != nil {
		return nil, err
	}
	return &IDWriter{lineFile: lf}, nil
}

// WriteID appends one identifier and flushes it.
func (w *IDWriter) WriteID(id uint64) error {
	if _, err := w.w.WriteString(strconv.FormatUint(id, 10) + "\n"); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	w.count++
	return w.flush()
}

// WriteValue appends a raw value line. Used when extracting fields that are
// not necessarily identifiers.
func (w *IDWriter) WriteValue(v string) error {
	if _, err := w.w.WriteString(v + "\n"); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	w.count++
	return w.flush()
}

// Count returns the lines written by this writer.
func (w *IDWriter) Count() int {
	return w.count
}
