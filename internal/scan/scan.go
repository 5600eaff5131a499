// Package scan lists the files under a directory while honoring .gitignore
// and .ignore rules.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/boyter/gocodewalker"
)

// Result is the outcome of a walk: root-relative file paths plus any
// errors the walker reported along the way.
type Result struct {
	Root   string
	Files  []string
	Errors []error
}

// Walk lists the regular files under root, skipping hidden entries and
// anything matched by ignore files. It stops early when ctx is cancelled.
func Walk(ctx context.Context, root string) (*Result, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("scan: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("scan: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan: root is not a directory: %s", abs)
	}

	res := &Result{Root: abs}
	var mu sync.Mutex

	queue := make(chan *gocodewalker.File, 100)
	walker := gocodewalker.NewFileWalker(abs, queue)
	walker.IgnoreGitIgnore = false
	walker.IgnoreIgnoreFile = false
	walker.SetErrorHandler(func(e error) bool {
		mu.Lock()
		res.Errors = append(res.Errors, e)
		mu.Unlock()
		return true
	})

	walkErr := make(chan error, 1)
	go func() {
		walkErr <- walker.Start()
	}()

	for f := range queue {
		if ctx.Err() != nil {
			walker.Terminate()
			continue
		}
		rel, err := filepath.Rel(abs, f.Location)
		if err != nil {
			mu.Lock()
			res.Errors = append(res.Errors, err)
			mu.Unlock()
			continue
		}
		if info, err := os.Stat(f.Location); err != nil || !info.Mode().IsRegular() {
			mu.Lock()
			res.Errors = append(res.Errors, fmt.Errorf("scan: skipping %s: not a regular file", f.Location))
			mu.Unlock()
			continue
		}
		res.Files = append(res.Files, rel)
	}
	err = <-walkErr
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, fmt.Errorf("scan: walk %s: %w", abs, err)
	}

	sort.Strings(res.Files)
	return res, nil
}
