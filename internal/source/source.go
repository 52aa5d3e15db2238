package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// PartialMovieDir is where the renderer leaves the numbered parts of each scene.
const PartialMovieDir = "partial_movie_files"

// ErrNoParts is returned when a scene has no video parts on disk.
var ErrNoParts = errors.New("no video parts found")

// Part is one numbered clip of a rendered scene.
type Part struct {
	Scene string
	Index int
	Path  string
}

// Name returns the file stem, e.g. "00003".
func (p Part) Name() string {
	return strings.TrimSuffix(filepath.Base(p.Path), filepath.Ext(p.Path))
}

// Pair groups an even part with the odd part following it.
// Second is nil for a trailing part without a partner.
type Pair struct {
	First  Part
	Second *Part
}

// SceneDir returns the partial-movie directory of a scene.
func SceneDir(movieRoot, scene string) string {
	return filepath.Join(movieRoot, PartialMovieDir, scene)
}

// Discover lists the *.mp4 parts of a scene sorted by file name.
func Discover(movieRoot, scene string) ([]Part, error) {
	dir := SceneDir(movieRoot, scene)
	paths, err := ListClips(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("scene %s: %w (%s missing)", scene, ErrNoParts, dir)
		}
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("scene %s: %w in %s", scene, ErrNoParts, dir)
	}

	parts := make([]Part, 0, len(paths))
	for _, p := range paths {
		idx, err := ParseIndex(p)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", scene, err)
		}
		parts = append(parts, Part{Scene: scene, Index: idx, Path: p})
	}
	return parts, nil
}

// ListClips returns the *.mp4 files of dir in lexicographic order.
func ListClips(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".mp4") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ParseIndex reads the numeric index encoded in a part's file stem.
func ParseIndex(path string) (int, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx, err := strconv.Atoi(stem)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("part %s: file name is not a part index", path)
	}
	return idx, nil
}

// Pairs matches every odd-indexed part with the even part before it.
// An even part whose successor is missing is returned alone.
func Pairs(parts []Part) ([]Pair, error) {
	byIndex := make(map[int]Part, len(parts))
	for _, p := range parts {
		if _, dup := byIndex[p.Index]; dup {
			return nil, fmt.Errorf("scene %s: duplicate part index %d", p.Scene, p.Index)
		}
		byIndex[p.Index] = p
	}

	var pairs []Pair
	for _, p := range parts {
		if p.Index%2 == 1 {
			prev, ok := byIndex[p.Index-1]
			if !ok {
				return nil, fmt.Errorf("scene %s: part %d has no preceding part %d", p.Scene, p.Index, p.Index-1)
			}
			second := p
			pairs = append(pairs, Pair{First: prev, Second: &second})
			continue
		}
		if _, ok := byIndex[p.Index+1]; !ok {
			pairs = append(pairs, Pair{First: p})
		}
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].First.Index < pairs[j].First.Index })
	return pairs, nil
}
