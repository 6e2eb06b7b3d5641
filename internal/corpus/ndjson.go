package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// NDJSONWriter writes one JSON object per line
type NDJSONWriter struct {
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

// NewNDJSONWriter truncates or creates path
func NewNDJSONWriter(path string) (*NDJSONWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create corpus: %w", err)
	}
	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &NDJSONWriter{f: f, buf: buf, enc: enc}, nil
}

// Write appends rows
func (w *NDJSONWriter) Write(ctx context.Context, rows []Row) error {
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.enc.Encode(r); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the file
func (w *NDJSONWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}
