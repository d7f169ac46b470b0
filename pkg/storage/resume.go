package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Resolved is the set of identifiers an earlier run already wrote to a sink.
type Resolved map[uint64]struct{}

// Has reports whether id was resolved.
func (r Resolved) Has(id uint64) bool {
	_, ok := r[id]
	return ok
}

// ScanResolved rebuilds the resolved set from the record and failure files
// of an earlier run. Missing files are treated as empty and lines that do not
// parse, such as one cut short by a crash, are ignored.
func ScanResolved(recordPath, failurePath string) (Resolved, error) {
	resolved := make(Resolved)

	if err := scanLines(recordPath, func(line []byte) {
		if id, ok := recordLineID(line); ok {
			resolved[id] = struct{}{}
		}
	}); err != nil {
		return nil, err
	}

	if err := scanLines(failurePath, func(line []byte) {
		if id, err := strconv.ParseUint(string(bytes.TrimSpace(line)), 10, 64); err == nil {
			resolved[id] = struct{}{}
		}
	}); err != nil {
		return nil, err
	}

	return resolved, nil
}

func scanLines(path string, fn func(line []byte)) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if line := scanner.Bytes(); len(bytes.TrimSpace(line)) > 0 {
			fn(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

func recordLineID(line []byte) (uint64, bool) {
	var rec struct {
		ID    json.Number `json:"id"`
		IDStr string      `json:"id_str"`
	}
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return 0, false
	}
	s := rec.IDStr
	if s == "" {
		s = rec.ID.String()
	}
	id, err := strconv.ParseUint(s, 10, 64)
	return id, err == nil
}
