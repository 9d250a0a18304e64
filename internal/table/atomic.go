package table

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PartSuffix marks a file that is still being written
const PartSuffix = ".part"

// WriteAtomic creates path's parent directories, streams write into path+".part",
// syncs it and renames it over path. On any failure the part file is removed, so
// path either holds a complete file or does not exist.
func WriteAtomic(path string, write func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	tmp := path + PartSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err = write(f); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Complete reports whether path exists as a finished file. A leftover part file
// never counts, whatever its size.
func Complete(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// HasStalePart reports whether an interrupted write left path+".part" behind.
func HasStalePart(path string) bool {
	_, err := os.Stat(path + PartSuffix)
	return err == nil
}
