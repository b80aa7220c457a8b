package batch

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"loan-intake/internal/documents"
	"loan-intake/internal/intake"
	"loan-intake/internal/shared/telemetry"
)

// Opener reads a document by key.
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Files opens keys as local file paths.
type Files struct{}

// Open implements Opener.
func (Files) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(key)
}

// ExpandPaths returns the accepted document files among paths, descending
// into directories. Order is lexical per argument.
func ExpandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() && documents.Accepted(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// Item is the result for one document.
type Item struct {
	Key     string         `json:"key"`
	Outcome intake.Outcome `json:"outcome"`
	Code    string         `json:"code,omitempty"`
	Err     error          `json:"-"`
}

// OK reports whether the document was stored.
func (i Item) OK() bool { return i.Err == nil }

// Report collects per-document results in input order.
type Report struct {
	Items     []Item
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// Runner processes many documents as independent units.
type Runner struct {
	Pipeline    intake.Processor
	Source      Opener
	Concurrency int
	// OnItem, when set, is called as each document finishes.
	OnItem func(Item)
}

// Run processes every key with at most Concurrency documents in flight. A
// failed document is recorded and skipped; it never stops the others.
// Cancelling ctx stops scheduling new documents.
func (r *Runner) Run(ctx context.Context, keys []string) Report {
	start := time.Now()
	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}
	items := make([]Item, len(keys))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, key := range keys {
		if ctx.Err() != nil {
			items[i] = Item{Key: key, Err: ctx.Err(), Code: intake.ErrorCode(ctx.Err())}
			continue
		}
		g.Go(func() error {
			item := r.one(ctx, key)
			items[i] = item
			if r.OnItem != nil {
				mu.Lock()
				r.OnItem(item)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Items: items, Elapsed: time.Since(start)}
	for _, it := range items {
		if it.OK() {
			rep.Succeeded++
		} else {
			rep.Failed++
		}
	}
	telemetry.Info("batch.finished", map[string]any{
		"documents":  len(keys),
		"succeeded":  rep.Succeeded,
		"failed":     rep.Failed,
		"elapsed_ms": rep.Elapsed.Milliseconds(),
	})
	return rep
}

func (r *Runner) one(ctx context.Context, key string) Item {
	item := Item{Key: key}
	rc, err := r.Source.Open(ctx, key)
	if err != nil {
		item.Err = err
		item.Code = intake.ErrorCode(err)
		return item
	}
	defer rc.Close()

	img, err := documents.ReadImage(key, rc)
	if err != nil {
		item.Err = err
		item.Code = intake.ErrorCode(err)
		return item
	}
	out, err := r.Pipeline.Process(ctx, img)
	item.Outcome = out
	if err != nil {
		item.Err = err
		item.Code = intake.ErrorCode(err)
	}
	return item
}
