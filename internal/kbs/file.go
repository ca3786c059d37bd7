package kbs

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Extension is the conventional container file extension.
const Extension = ".kbs"

// WriteFile encodes ct to path. The file is written to a temporary name
// and renamed into place, so readers never see a partial container.
func (c *Codec) WriteFile(ctx context.Context, path string, ct *Container) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	if err := c.Encode(ctx, w, ct); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}

// ReadFile decodes the container at path.
func (c *Codec) ReadFile(ctx context.Context, path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	defer f.Close()

	ct, err := c.Decode(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ct, nil
}

// ReadHeader reads only the header line of the container at path.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	defer f.Close()
	return readHeader(bufio.NewReader(f))
}

// DetectFormat reports the container version of path. Files that are not
// containers of a supported version yield *UnsupportedFormatError.
func DetectFormat(path string) (int, error) {
	h, err := ReadHeader(path)
	if err != nil {
		return 0, err
	}
	return h.Version, nil
}
