// Package tabular provides record sources for downloaded tabular files.
package tabular

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// CSVConfig configures CSV parsing.
type CSVConfig struct {
	Comma     rune // Field delimiter, ',' when zero
	RawValues bool // Keep every value as a string instead of inferring types
}

// CSVSource opens CSV files (optionally gzip-compressed) as record readers.
type CSVSource struct {
	cfg CSVConfig
}

// NewCSVSource creates a new CSV record source.
func NewCSVSource(cfg CSVConfig) *CSVSource {
	if cfg.Comma == 0 {
		cfg.Comma = ','
	}
	return &CSVSource{cfg: cfg}
}

var _ output.RecordSource = (*CSVSource)(nil)

// Open implements output.RecordSource. Files ending in .gz are decompressed.
func (s *CSVSource) Open(path string) (output.RecordReader, error) {
	f, err := os.Open(path) //#nosec G304 -- path is a controlled download location
	if err != nil {
		return nil, err
	}

	r := &CSVReader{file: f, infer: !s.cfg.RawValues}

	var src io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(src)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		r.gz = gz
		src = gz
	}

	r.csv = csv.NewReader(src)
	r.csv.Comma = s.cfg.Comma
	r.csv.ReuseRecord = true
	r.csv.FieldsPerRecord = -1

	header, err := r.csv.Read()
	if err != nil {
		_ = r.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing header row: %w", err)
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	r.header = append([]string(nil), header...)

	return r, nil
}

// CSVReader yields one document per CSV data row, keyed by the header.
type CSVReader struct {
	file   *os.File
	gz     *gzip.Reader
	csv    *csv.Reader
	header []string
	infer  bool
}

// Header returns the column names.
func (r *CSVReader) Header() []string {
	return r.header
}

// Next implements output.RecordReader.
func (r *CSVReader) Next() (domain.Document, error) {
	record, err := r.csv.Read()
	if err != nil {
		return nil, err
	}
	if len(record) > len(r.header) {
		line, _ := r.csv.FieldPos(0)
		return nil, fmt.Errorf("record on line %d has %d fields, header has %d: %w",
			line, len(record), len(r.header), csv.ErrFieldCount)
	}

	// Missing trailing cells are null.
	doc := make(domain.Document, len(r.header))
	for i, key := range r.header {
		var value any
		if i < len(record) {
			value = r.value(record[i])
		}
		doc[i] = domain.Field{Key: key, Value: value}
	}
	return doc, nil
}

func (r *CSVReader) value(raw string) any {
	if !r.infer {
		return raw
	}
	return InferValue(raw)
}

// Close implements output.RecordReader.
func (r *CSVReader) Close() error {
	if r.gz != nil {
		_ = r.gz.Close()
	}
	return r.file.Close()
}

// InferValue converts a CSV cell to the narrowest matching type: empty is
// nil, then int64, float64, bool, and string as the fallback.
func InferValue(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "True", "true", "TRUE":
		return true
	case "False", "false", "FALSE":
		return false
	}
	return raw
}
