package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
	"github.com/MeKo-Tech/regionseg/internal/utils"
)

// fileFilter selects files by glob patterns on their base name. Excludes
// win over includes; no includes means everything passes.
type fileFilter struct {
	include []string
	exclude []string
}

func newFileFilter(include, exclude []string) (fileFilter, error) {
	for _, p := range append(slices.Clone(include), exclude...) {
		if _, err := filepath.Match(p, ""); err != nil {
			return fileFilter{}, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	return fileFilter{include: include, exclude: exclude}, nil
}

func (f fileFilter) match(path string) bool {
	base := filepath.Base(path)
	if anyMatch(f.exclude, base) {
		return false
	}
	return len(f.include) == 0 || anyMatch(f.include, base)
}

func anyMatch(patterns []string, name string) bool {
	return slices.ContainsFunc(patterns, func(p string) bool {
		ok, _ := filepath.Match(p, name)
		return ok
	})
}

// discoverImageFiles expands args into image files in argument order.
// Explicit files only have to pass the filter; directories contribute
// supported images, walked in lexical order. Duplicates are dropped.
func discoverImageFiles(args []string, recursive bool, filter fileFilter) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		if key := filepath.Clean(path); !seen[key] {
			seen[key] = true
			files = append(files, path)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			if filter.match(arg) {
				add(arg)
			}
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			switch {
			case err != nil:
				return err
			case d.IsDir() && path != arg && !recursive:
				return filepath.SkipDir
			case !d.IsDir() && utils.IsSupportedImage(path) && filter.match(path):
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
		}
	}
	return files, nil
}

// labelSuffixes are tried in order when looking up a label image.
var labelSuffixes = []string{".png", "_labels.png"}

// matchLabels pairs each file with a label image of the same base name in
// labelsDir, if one exists.
func matchLabels(files []string, labelsDir string) []pipeline.FileInput {
	inputs := make([]pipeline.FileInput, len(files))
	for i, f := range files {
		inputs[i] = pipeline.FileInput{Path: f}
		if labelsDir == "" {
			continue
		}
		base := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		for _, suffix := range labelSuffixes {
			candidate := filepath.Join(labelsDir, base+suffix)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				inputs[i].LabelsPath = candidate
				break
			}
		}
	}
	return inputs
}
