// Package registry resolves the configured model location to the file the
// backend loads.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"llmgate/internal/common/fsutil"
)

// Model is a resolved model on disk.
type Model struct {
	// Name is the file or directory base name.
	Name string
	// Path is the absolute path handed to the backend.
	Path string
	// SizeBytes is the on-disk size, used to estimate load progress.
	SizeBytes int64
}

// ErrNoModel is returned when a directory holds no .gguf file.
var ErrNoModel = errors.New("no .gguf model found")

// LoadDir scans a directory for *.gguf files, sorted by name.
func LoadDir(dir string) ([]Model, error) {
	abs, err := fsutil.ExpandPath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		models = append(models, Model{Name: name, Path: filepath.Join(abs, name), SizeBytes: info.Size()})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

// Resolve turns path into a loadable model. A file is used as is; a
// directory resolves to its first .gguf file. Split models
// (name-00001-of-00003.gguf) resolve to the first shard, and the size
// counts every file in the directory.
func Resolve(path string) (Model, error) {
	if strings.TrimSpace(path) == "" {
		return Model{}, errors.New("model path is empty")
	}
	abs, err := fsutil.ExpandPath(path)
	if err != nil {
		return Model{}, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return Model{}, fmt.Errorf("model path not found: %s", abs)
	}
	if !st.IsDir() {
		return Model{Name: filepath.Base(abs), Path: abs, SizeBytes: st.Size()}, nil
	}
	models, err := LoadDir(abs)
	if err != nil {
		return Model{}, err
	}
	if len(models) == 0 {
		return Model{}, fmt.Errorf("%w in %s", ErrNoModel, abs)
	}
	m := models[0]
	if len(models) > 1 {
		if total, err := fsutil.SizeOf(abs); err == nil {
			m.SizeBytes = total
		}
	}
	return m, nil
}
