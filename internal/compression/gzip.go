package compression

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Gzip copies src into dst through a gzip writer at maximum compression.
// Data is streamed; nothing is buffered beyond the encoder's window.
func Gzip(dst io.Writer, src io.Reader) (int64, error) {
	gz, err := gzip.NewWriterLevel(dst, gzip.BestCompression)
	if err != nil {
		return 0, fmt.Errorf("gzip writer: %w", err)
	}

	n, err := io.Copy(gz, src)
	if err != nil {
		_ = gz.Close()
		return n, fmt.Errorf("gzip copy: %w", err)
	}

	// gzip flushes its trailer on Close.
	if err := gz.Close(); err != nil {
		return n, fmt.Errorf("gzip close: %w", err)
	}

	return n, nil
}

// Gunzip copies the decompressed content of src into dst.
func Gunzip(dst io.Writer, src io.Reader) (int64, error) {
	gr, err := gzip.NewReader(src)
	if err != nil {
		return 0, fmt.Errorf("gzip reader: %w", err)
	}
	defer gr.Close()

	n, err := io.Copy(dst, gr)
	if err != nil {
		return n, fmt.Errorf("gunzip copy: %w", err)
	}
	return n, nil
}
