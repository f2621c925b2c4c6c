// Package sanitize removes stored images that no shot references any more.
package sanitize

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultMinAge is how old an unreferenced file must be before it counts as
// orphaned. Uploads are written to the media store before their shot row is
// committed, so younger files may still be mid-ingest.
const DefaultMinAge = time.Hour

// ImageIndex lists the image paths referenced by stored shots.
type ImageIndex interface {
	ImagePaths(ctx context.Context) ([]string, error)
}

// MediaFiles lists and removes stored images.
type MediaFiles interface {
	List() ([]string, error)
	ModTime(rel string) (time.Time, error)
	Remove(rel string) error
}

// Options controls a prune run.
type Options struct {
	// Apply deletes the orphans; otherwise they are only reported.
	Apply  bool
	// MinAge skips unreferenced files modified more recently than this.
	MinAge time.Duration
	now    func() time.Time
}

// Result reports what a prune found and did.
type Result struct {
	Scanned int
	Orphans []string
	// Recent counts unreferenced files left alone because they are younger than MinAge.
	Recent  int
	Removed int
}

// PruneMedia finds media files with no shot pointing at them. Nothing is
// deleted unless opts.Apply is set.
func PruneMedia(ctx context.Context, index ImageIndex, media MediaFiles, opts Options, log *slog.Logger) (*Result, error) {
	if log == nil {
		log = slog.Default()
	}
	now := time.Now
	if opts.now != nil {
		now = opts.now
	}
	cutoff := now().Add(-opts.MinAge)

	// List before reading the index so files saved in between are never candidates.
	files, err := media.List()
	if err != nil {
		return nil, err
	}
	referenced, err := index.ImagePaths(ctx)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]struct{}, len(referenced))
	for _, p := range referenced {
		keep[p] = struct{}{}
	}

	res := &Result{Scanned: len(files)}
	for _, f := range files {
		if _, ok := keep[f]; ok {
			continue
		}
		if opts.MinAge > 0 {
			mod, err := media.ModTime(f)
			if err != nil {
				return nil, fmt.Errorf("prune %s: %w", f, err)
			}
			if mod.After(cutoff) {
				res.Recent++
				continue
			}
		}
		res.Orphans = append(res.Orphans, f)
	}
	if !opts.Apply {
		return res, nil
	}
	for _, f := range res.Orphans {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := media.Remove(f); err != nil {
			return res, fmt.Errorf("prune %s: %w", f, err)
		}
		res.Removed++
		log.Info("removed orphaned image", "image", f)
	}
	return res, nil
}
