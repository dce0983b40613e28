package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Dir reads CSV files from a local directory instead of the hosted feed.
// Files are visited in path order; headers come from the first parseable
// file and later files with the same header set are appended.
type Dir struct {
	Root       string
	Walker     FileSystemWalker
	FileReader FileReader
}

func NewDir(root string) *Dir {
	return &Dir{
		Root:       root,
		Walker:     &DefaultFileSystemWalker{},
		FileReader: &DefaultFileReader{},
	}
}

func (d *Dir) Fetch(ctx context.Context) (Dataset, error) {
	var paths []string
	err := d.Walker.Walk(d.Root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				return nil
			}
			if strings.ToLower(filepath.Ext(path)) != ".csv" {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			paths = append(paths, path)
			return nil
		},
	})
	if err != nil {
		return Dataset{}, err
	}
	sort.Strings(paths)

	out := Dataset{SourceRef: d.Root}
	for _, p := range paths {
		b, err := d.FileReader.ReadFile(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("failed to read csv file")
			continue
		}
		ds := ParseCSV(string(b))
		if len(ds.Records) == 0 {
			continue
		}
		if out.Headers == nil {
			out.Headers = ds.Headers
		}
		out.Records = append(out.Records, ds.Records...)
	}
	return out, nil
}
