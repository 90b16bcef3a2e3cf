package tools

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// visibilityFile is the on-disk shape of tools.yaml:
//
//	tools:
//	  web-search: true
//	  canvas: false
type visibilityFile struct {
	Tools map[string]bool `yaml:"tools"`
}

// VisibilitySource loads tool visibility once per session.
type VisibilitySource struct {
	path string

	once sync.Once
	vis  Visibility
	err  error
}

func NewVisibilitySource(path string) *VisibilitySource {
	return &VisibilitySource{path: path}
}

// Load returns the visibility map, reading the file on first use. A missing
// file yields AllVisible. Ids not listed in an existing file are hidden.
func (s *VisibilitySource) Load() (Visibility, error) {
	s.once.Do(func() {
		s.vis, s.err = readVisibility(s.path)
	})
	return s.vis, s.err
}

func readVisibility(path string) (Visibility, error) {
	if path == "" {
		return AllVisible(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return AllVisible(), nil
	}
	if err != nil {
		return AllVisible(), fmt.Errorf("read tools file: %w", err)
	}

	var f visibilityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return AllVisible(), fmt.Errorf("parse tools file %s: %w", path, err)
	}

	vis := Visibility{}
	for k, v := range f.Tools {
		id := ID(k)
		if _, known := byID[id]; !known {
			// Accept legacy spellings as well.
			if mapped, ok := FromLegacy(k); ok {
				id = mapped
			} else {
				continue
			}
		}
		vis[id] = v
	}
	return vis, nil
}
