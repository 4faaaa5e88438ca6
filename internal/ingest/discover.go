package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Discovery statuses.
const (
	StatusNew     = "new"
	StatusUpdated = "updated"
	StatusSkipped = "skipped"
)

// File is a discovered candidate for processing.
type File struct {
	Path    string
	ModTime time.Time
	Size    int64
	Status  string
}

// Discover walks root (a folder or a single file) and classifies every file
// a registered parser can read. Hidden directories are not entered. Files
// unchanged since the manifest last saw them are skipped unless force is set.
func Discover(root string, reg *Registry, m *Manifest, force bool) ([]File, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", root, err)
	}
	if !info.IsDir() {
		if _, ok := reg.Lookup(root); !ok {
			return nil, fmt.Errorf("unsupported file type: %s", root)
		}
		return []File{classify(root, info, m, force)}, nil
	}

	var out []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if _, ok := reg.Lookup(path); !ok {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, classify(path, fi, m, force))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return out, nil
}

func classify(path string, info fs.FileInfo, m *Manifest, force bool) File {
	f := File{Path: path, ModTime: info.ModTime(), Size: info.Size(), Status: StatusNew}
	if m == nil {
		return f
	}
	e, ok := m.Lookup(path)
	switch {
	case !ok:
	case force || info.ModTime().After(e.ModTime):
		f.Status = StatusUpdated
	default:
		f.Status = StatusSkipped
	}
	return f
}

// Pending filters out skipped files.
func Pending(files []File) []File {
	var out []File
	for _, f := range files {
		if f.Status != StatusSkipped {
			out = append(out, f)
		}
	}
	return out
}
