package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type (
	// DirResolver looks up assets below a list of search roots, the first
	// root containing the asset wins. Names are matched exactly first and
	// case-insensitively afterwards, as resources reference assets with
	// varying case.
	DirResolver struct {
		roots []*searchRoot
	}

	searchRoot struct {
		dir string

		indexOnce sync.Once
		index     map[string]string // lower(relative path) → full path
		indexErr  error
	}
)

// NewDirResolver creates a resolver for the given search roots
func NewDirResolver(roots ...string) *DirResolver {
	r := &DirResolver{}
	for _, dir := range roots {
		r.roots = append(r.roots, &searchRoot{dir: dir})
	}
	return r
}

// Resolve implements Resolver
func (r *DirResolver) Resolve(name string) ([]byte, error) {
	rel, err := Normalize(name)
	if err != nil {
		return nil, err
	}

	for _, root := range r.roots {
		p, err := root.find(rel)
		if err != nil {
			return nil, err
		}
		if p == "" {
			continue
		}

		data, err := os.ReadFile(p) //#nosec:G304 // Intended to read assets below search roots
		if err != nil {
			return nil, fmt.Errorf("reading asset %s: %w", name, err)
		}
		return data, nil
	}

	return nil, NotFound(name)
}

// find returns the path of rel below the root or an empty string
func (s *searchRoot) find(rel string) (string, error) {
	exact := filepath.Join(s.dir, filepath.FromSlash(rel))

	switch info, err := os.Stat(exact); {
	case err == nil && !info.IsDir():
		return exact, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("accessing %s: %w", exact, err)
	}

	s.indexOnce.Do(s.buildIndex)
	if s.indexErr != nil {
		return "", s.indexErr
	}

	return s.index[strings.ToLower(rel)], nil
}

func (s *searchRoot) buildIndex() {
	s.index = map[string]string{}

	s.indexErr = filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == s.dir && errors.Is(err, fs.ErrNotExist) {
				// Missing roots contain nothing
				return filepath.SkipDir
			}
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return fmt.Errorf("relating %s to search root: %w", p, err)
		}

		key := strings.ToLower(filepath.ToSlash(rel))
		if _, exists := s.index[key]; !exists {
			s.index[key] = p
		}
		return nil
	})

	if s.indexErr != nil {
		s.indexErr = fmt.Errorf("indexing search root %s: %w", s.dir, s.indexErr)
	}
}
