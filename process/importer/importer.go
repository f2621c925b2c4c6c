// Package importer ingests shot photos dropped into a folder, once at startup
// and optionally as new files arrive.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"shotlog/pkg/ingest"
	"shotlog/pkg/readout"
)

// ProcessedDir is the subfolder ingested files are moved into.
const ProcessedDir = "processed"

// Ingester stores and processes one upload.
type Ingester interface {
	Ingest(ctx context.Context, up ingest.Upload) (*ingest.Result, error)
}

type Options struct {
	Display readout.Display
	// SessionRef puts every imported shot into that session. When nil one
	// session is created by the first file and reused for the rest.
	SessionRef *uint
	Workers    int
	Debounce   time.Duration
}

// Summary counts the outcome of an import run.
type Summary struct {
	Processed int
	Failed    int // stored, but the pipeline failed
	Skipped   int // not stored; left in place
}

type Importer struct {
	svc  Ingester
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	session  *uint
	sum      Summary
	inFlight map[string]struct{}
}

func New(svc Ingester, opts Options, logger *slog.Logger) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{svc: svc, opts: opts, log: logger, session: opts.SessionRef, inFlight: map[string]struct{}{}}
}

// Summary returns the counts accumulated so far.
func (im *Importer) Summary() Summary {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.sum
}

// ImportDir ingests every supported image currently in dir.
func (im *Importer) ImportDir(ctx context.Context, dir string) (Summary, error) {
	names, err := listImageFiles(dir)
	if err != nil {
		return Summary{}, err
	}
	if len(names) == 0 {
		return im.Summary(), nil
	}
	// The first file settles the session so the rest can share it.
	if err := im.importFile(ctx, dir, names[0]); err != nil {
		return im.Summary(), err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Workers)
	for _, name := range names[1:] {
		g.Go(func() error { return im.importFile(gctx, dir, name) })
	}
	err = g.Wait()
	return im.Summary(), err
}

// Watch imports the current contents of dir and then every new image created
// in it, until ctx is done.
func (im *Importer) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if _, err := im.ImportDir(ctx, dir); err != nil {
		return err
	}
	im.log.Info("watching for new shots", "dir", dir)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Workers + 1)
	pending := map[string]time.Time{}
	ticker := time.NewTicker(im.opts.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return g.Wait()
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				name := filepath.Base(ev.Name)
				if filepath.Dir(ev.Name) == filepath.Clean(dir) && isSupportedExt(name) {
					pending[name] = time.Now()
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return g.Wait()
			}
			im.log.Warn("watch error", "err", err)
		case now := <-ticker.C:
			// a file is picked up once it has stopped changing
			for name, t := range pending {
				if now.Sub(t) < im.opts.Debounce {
					continue
				}
				delete(pending, name)
				// writes seen while a file is importing must not queue it again
				if !im.claim(name) {
					continue
				}
				g.Go(func() error {
					defer im.release(name)
					if err := im.importFile(gctx, dir, name); err != nil {
						im.log.Error("import failed", "file", name, "err", err)
					}
					return nil
				})
			}
		}
	}
}

func (im *Importer) importFile(ctx context.Context, dir, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		im.count(func(s *Summary) { s.Skipped++ })
		im.log.Warn("read shot file", "file", name, "err", err)
		return nil
	}

	ref := im.sessionRef()
	res, err := im.svc.Ingest(ctx, ingest.Upload{Filename: name, Data: data, SessionRef: ref, Display: im.opts.Display})
	var perr *ingest.ProcessingError
	switch {
	case err == nil:
		im.rememberSession(res.Session.ID)
		im.count(func(s *Summary) { s.Processed++ })
		im.log.Info("imported shot", "file", name, "shot", res.Shot.ID, "session", res.Session.ID, "confidence", res.OCR.Confidence)
	case errors.As(err, &perr):
		im.rememberSession(perr.SessionID)
		im.count(func(s *Summary) { s.Failed++ })
		im.log.Warn("imported shot without metrics", "file", name, "shot", perr.ShotID, "err", perr.Err)
	default:
		im.count(func(s *Summary) { s.Skipped++ })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		im.log.Error("import shot", "file", name, "err", err)
		return nil
	}

	// The shot row exists now, so the file must not be imported again.
	if err := moveToProcessed(dir, name); err != nil {
		im.log.Warn("move imported file", "file", name, "err", err)
	}
	return nil
}

func (im *Importer) sessionRef() *uint {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.session == nil {
		return nil
	}
	id := *im.session
	return &id
}

func (im *Importer) rememberSession(id uint) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.session == nil || *im.session != id {
		im.session = &id
	}
}

// claim marks name as being imported. It reports false when it already is.
func (im *Importer) claim(name string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	if _, busy := im.inFlight[name]; busy {
		return false
	}
	im.inFlight[name] = struct{}{}
	return true
}

func (im *Importer) release(name string) {
	im.mu.Lock()
	delete(im.inFlight, name)
	im.mu.Unlock()
}

func (im *Importer) count(f func(*Summary)) {
	im.mu.Lock()
	f(&im.sum)
	im.mu.Unlock()
}

func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func isSupportedExt(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp":
		return true
	}
	return false
}

// moveToProcessed moves dir/name to dir/processed/name, falling back to copy
// and remove when a rename is not possible.
func moveToProcessed(dir, name string) error {
	dstDir := filepath.Join(dir, ProcessedDir)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}
	src := filepath.Join(dir, name)
	dst := filepath.Join(dstDir, name)
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
