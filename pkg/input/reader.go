// Package input reads post identifiers from line-delimited text or JSON.
package input

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	errs "tweetharvest/pkg/errors"
	"tweetharvest/pkg/logger"
)

// DefaultKey is the JSON field Extract reads when none is configured.
const DefaultKey = "id"

// maxLineSize bounds a single input line; archived records can be large.
const maxLineSize = 16 * 1024 * 1024

// BatchReader groups identifiers from a line source into batches.
type BatchReader struct {
	scanner *bufio.Scanner
	size    int
	key     []string
	logger  logger.Logger
	line    int
	skipped int
	err     error
}

// NewBatchReader reads batches of up to size identifiers from r. With an
// empty key every line must be a bare decimal identifier. Otherwise every line
// must be a JSON object and key, a dotted path such as "retweeted_status.id",
// names the identifier field.
func NewBatchReader(r io.Reader, size int, key string, log logger.Logger) *BatchReader {
	if size <= 0 {
		size = 100
	}
	var path []string
	if key != "" {
		path = strings.Split(key, ".")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &BatchReader{
		scanner: scanner,
		size:    size,
		key:     path,
		logger:  log,
	}
}

// Next returns the next batch. It is shorter than the batch size only at the
// end of input, and empty once input is exhausted. Malformed lines are logged
// and skipped without taking a slot in the batch.
func (b *BatchReader) Next() ([]uint64, error) {
	if b.err != nil {
		return nil, b.err
	}

	batch := make([]uint64, 0, b.size)
	for len(batch) < b.size && b.scanner.Scan() {
		b.line++
		line := bytes.TrimSpace(b.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		id, err := b.parse(line)
		if err != nil {
			b.skipped++
			b.logger.WarnWithFields("skipping malformed input line", map[string]interface{}{
				"line":  b.line,
				"error": err.Error(),
			})
			continue
		}
		batch = append(batch, id)
	}

	if err := b.scanner.Err(); err != nil {
		b.err = fmt.Errorf("failed to read input at line %d: %w", b.line+1, err)
		return batch, b.err
	}
	return batch, nil
}

// Skipped returns the number of malformed lines seen so far.
func (b *BatchReader) Skipped() int {
	return b.skipped
}

func (b *BatchReader) parse(line []byte) (uint64, error) {
	if b.key == nil {
		id, err := strconv.ParseUint(string(line), 10, 64)
		if err != nil {
			return 0, errs.NewMalformedInputError(b.line, "not an identifier", err)
		}
		return id, nil
	}
	if line[0] != '{' {
		return 0, errs.NewMalformedInputError(b.line, "not a JSON object", nil)
	}

	v, err := lookup(line, b.key)
	if err != nil {
		return 0, errs.NewMalformedInputError(b.line, "invalid JSON record", err)
	}
	id, err := toIdentifier(v)
	if err != nil {
		return 0, errs.NewMalformedInputError(b.line, fmt.Sprintf("field %q", strings.Join(b.key, ".")), err)
	}
	return id, nil
}

// lookup decodes one JSON object and walks path through nested objects.
func lookup(line []byte, path []string) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	for _, field := range path {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%q is not inside an object", field)
		}
		if v, ok = obj[field]; !ok {
			return nil, fmt.Errorf("missing field %q", field)
		}
	}
	return v, nil
}

func toIdentifier(v interface{}) (uint64, error) {
	switch t := v.(type) {
	case json.Number:
		return strconv.ParseUint(t.String(), 10, 64)
	case string:
		return strconv.ParseUint(t, 10, 64)
	case nil:
		return 0, fmt.Errorf("value is null")
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
