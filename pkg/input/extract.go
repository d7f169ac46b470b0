package input

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"tweetharvest/pkg/logger"
)

// ExtractStats summarises an Extract run.
type ExtractStats struct {
	Lines   int
	Written int
	Skipped int
}

// ValueWriter receives extracted values, one per call.
type ValueWriter interface {
	WriteValue(v string) error
}

// Extract copies the value of key from every JSON line of r to w. Strings
// and numbers are written as is, other values as compact JSON. Lines that
// do not decode or lack key are logged and skipped.
func Extract(r io.Reader, w ValueWriter, key string, log logger.Logger) (ExtractStats, error) {
	if key == "" {
		key = DefaultKey
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	path := strings.Split(key, ".")

	var stats ExtractStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		stats.Lines++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		v, err := lookup(line, path)
		if err != nil {
			stats.Skipped++
			log.WarnWithFields("skipping input line", map[string]interface{}{
				"line":  stats.Lines,
				"error": err.Error(),
			})
			continue
		}

		if err := w.WriteValue(formatValue(v)); err != nil {
			return stats, err
		}
		stats.Written++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read input: %w", err)
	}
	return stats, nil
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
