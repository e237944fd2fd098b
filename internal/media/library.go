package media

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Library places sideloaded files into the destination media directory and
// derives their public URLs.
type Library struct {
	dir     string
	baseURL string
}

// NewLibrary creates the media directory if needed. baseURL is the public
// prefix the directory is served under.
func NewLibrary(dir, baseURL string) (*Library, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory %s: %w", dir, err)
	}
	return &Library{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Sideload moves a downloaded temp file into the library under a unique name
// derived from sourceURL. Returns the stored path and the public URL.
func (l *Library) Sideload(tempPath, sourceURL string) (string, string, error) {
	name := uniqueName(sourceURL)
	dest := filepath.Join(l.dir, name)

	if err := moveFile(tempPath, dest); err != nil {
		return "", "", fmt.Errorf("failed to place %s in media library: %w", name, err)
	}

	return dest, l.baseURL + "/" + name, nil
}

// uniqueName keeps the original file name recognizable while guaranteeing no
// collision with files already in the library.
func uniqueName(sourceURL string) string {
	base := "file"
	if parsed, err := url.Parse(sourceURL); err == nil {
		if b := path.Base(parsed.Path); b != "" && b != "." && b != "/" {
			base = b
		}
	}
	return uuid.NewString()[:8] + "-" + base
}

// moveFile renames when possible and falls back to copy+remove for
// cross-device temp directories.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Remove(src)
}
