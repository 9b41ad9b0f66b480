package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"qanerd/internal/intent"
	"qanerd/internal/logging"
)

// DefaultParallelism is the number of files parsed concurrently.
const DefaultParallelism = 4

// Loader reads intents from catalog and markdown files.
type Loader struct {
	Parallelism int
}

// NewLoader creates a loader. Non-positive parallelism uses the default.
func NewLoader(parallelism int) *Loader {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Loader{Parallelism: parallelism}
}

// IsSupported reports whether a file is a catalog or manual-test markdown file.
func IsSupported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".md", ".markdown":
		return true
	}
	return false
}

// LoadFile loads the intents in a single file. Markdown without front matter
// yields no intents.
func LoadFile(path string) ([]intent.ManualTestIntent, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadCatalog(path)
	case ".md", ".markdown":
		in, err := LoadMarkdown(path)
		if errors.Is(err, ErrNoFrontMatter) {
			logging.IngestDebug("Skipping %s: no front matter", path)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []intent.ManualTestIntent{in}, nil
	}
	return nil, nil
}

// collect expands directories into the supported files beneath them.
func collect(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if IsSupported(p) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Load reads every supported file under paths in parallel and returns the
// intents sorted by ID. An ID defined in two places is a validation error.
func (l *Loader) Load(ctx context.Context, paths ...string) ([]intent.ManualTestIntent, error) {
	timer := logging.StartTimer(logging.CategoryIngest, "Load")
	defer timer.Stop()

	files, err := collect(paths)
	if err != nil {
		return nil, err
	}

	results := make([][]intent.ManualTestIntent, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.Parallelism)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			intents, err := LoadFile(f)
			if err != nil {
				return err
			}
			results[i] = intents
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []intent.ManualTestIntent
	sources := make(map[string]string)
	for i, intents := range results {
		for _, in := range intents {
			id := strings.TrimSpace(in.ID)
			if prev, dup := sources[id]; dup {
				return nil, intent.NewValidationError("duplicate intent id %q in %s and %s", id, prev, files[i])
			}
			sources[id] = files[i]
			all = append(all, in)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	logging.Ingest("Loaded %d intents from %d files", len(all), len(files))
	return all, nil
}
