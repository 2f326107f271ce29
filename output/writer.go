package output

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/scipunch/newsdigest/digest"
	"github.com/scipunch/newsdigest/fetcher/types"
)

const DefaultDirectory = "output"

// Writer persists rendered digests as <root>/<collection>/<YYYY-MM-DD>.md
type Writer struct {
	root string
	// write fills the temporary file; swapped in tests to simulate failures
	write func(f *os.File, content []byte) error
}

func NewWriter(root string) *Writer {
	if root == "" {
		root = DefaultDirectory
	}
	return &Writer{
		root: root,
		write: func(f *os.File, content []byte) error {
			_, err := f.Write(content)
			return err
		},
	}
}

// Path returns where the digest of collection for date is stored
func (w *Writer) Path(collection string, date time.Time) string {
	return filepath.Join(w.root, collection, date.Format(digest.DateLayout)+".md")
}

// Write stores content for collection and date, replacing any previous file.
// The content goes to a temporary file in the same directory which is then
// renamed into place, so readers see either the old file or the new one.
func (w *Writer) Write(collection string, date time.Time, content string) (string, error) {
	path := w.Path(collection, date)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &types.IOError{Path: path, Err: fmt.Errorf("failed to create directory '%s' with %w", dir, err)}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", &types.IOError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	fail := func(err error) (string, error) {
		tmp.Close()
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("failed to remove temporary file", "path", tmpPath, "error", rmErr)
		}
		return "", &types.IOError{Path: path, Err: err}
	}

	if err := w.write(tmp, []byte(content)); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fail(err)
	}

	slog.Info("digest written", "path", path, "bytes", len(content))
	return path, nil
}
