package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalidFilename rejects names that cannot be saved.
var ErrInvalidFilename = errors.New("invalid filename")

// Saver hands content to the user under a filename.
type Saver interface {
	Save(ctx context.Context, content io.Reader, b Blob, filename string) error
}

// SanitizeFilename strips directory parts and control characters.
func SanitizeFilename(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return name, nil
}

// DirSaver writes downloads into a directory.
type DirSaver struct {
	Dir string
}

func (s DirSaver) Save(_ context.Context, content io.Reader, _ Blob, filename string) error {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	f, err := os.Create(filepath.Join(s.Dir, name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, content); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

// ResponseSaver streams the download as an HTTP attachment.
type ResponseSaver struct {
	W http.ResponseWriter
	// Inline serves the content for in-page viewing instead of a save prompt.
	Inline bool
}

func (s ResponseSaver) Save(_ context.Context, content io.Reader, b Blob, filename string) error {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return err
	}

	disposition := "attachment"
	if s.Inline {
		disposition = "inline"
	}
	contentType := b.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := s.W.Header()
	header.Set("Content-Type", contentType)
	header.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))
	if b.Size > 0 {
		header.Set("Content-Length", strconv.FormatInt(b.Size, 10))
	}
	s.W.WriteHeader(http.StatusOK)

	if _, err := io.Copy(s.W, content); err != nil {
		return fmt.Errorf("stream %s: %w", name, err)
	}
	return nil
}
