package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"kge/internal/domain"
)

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// Locate resolves a doublestar pattern relative to root into the regular
// files it matches, sorted by path. An absolute pattern is used as a literal
// path. Finding nothing is an error wrapping domain.ErrCorpusNotFound.
func Locate(root, pattern string) ([]FileInfo, error) {
	if filepath.IsAbs(pattern) {
		info, err := os.Stat(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorpusNotFound, pattern, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", domain.ErrCorpusNotFound, pattern)
		}
		return []FileInfo{toFileInfo(pattern, info)}, nil
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	matches, err := doublestar.Glob(os.DirFS(root), filepath.ToSlash(pattern), doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("invalid corpus pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)

	files := make([]FileInfo, 0, len(matches))
	for _, m := range matches {
		path := filepath.Join(root, filepath.FromSlash(m))
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		files = append(files, toFileInfo(path, info))
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no match for %q under %s", domain.ErrCorpusNotFound, pattern, root)
	}
	return files, nil
}

// LocateOne is Locate for patterns that must match exactly one file.
func LocateOne(root, pattern string) (FileInfo, error) {
	files, err := Locate(root, pattern)
	if err != nil {
		return FileInfo{}, err
	}
	if len(files) > 1 {
		return FileInfo{}, fmt.Errorf("%w: %q matched %d files", domain.ErrAmbiguousCorpus, pattern, len(files))
	}
	return files[0], nil
}

func toFileInfo(path string, info os.FileInfo) FileInfo {
	return FileInfo{
		Path:    path,
		ModTime: info.ModTime().UnixNano(),
		Size:    info.Size(),
	}
}
