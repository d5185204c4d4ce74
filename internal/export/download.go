package export

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// Download streams content to the client as an attachment named filename.
// The body is copied once from a transient reader; there is no retry.
func Download(w http.ResponseWriter, content, filename string) error {
	body := bytes.NewReader([]byte(content))

	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	h.Set("Content-Length", strconv.Itoa(body.Len()))
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// WriteFile stores content as dir/filename and returns the final path. The
// data goes to a temporary file first which is removed on any failure, so a
// partially written export never appears under filename.
func WriteFile(dir, filename, content string) (path string, err error) {
	if filename == "" || filepath.Base(filename) != filename {
		return "", fmt.Errorf("invalid export filename %q", filename)
	}

	tmp, err := os.CreateTemp(dir, ".runs-*.md.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp export: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.WriteString(tmp, content); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}

	path = filepath.Join(dir, filename)
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename export: %w", err)
	}
	return path, nil
}
