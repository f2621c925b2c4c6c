// Package ingest turns an uploaded photo into a stored, processed Shot.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shotlog/models"
	"shotlog/pkg/readout"
	"shotlog/pkg/store"
)

// Extractor runs the OCR pipeline over raw photo bytes.
type Extractor interface {
	Run(ctx context.Context, data []byte, d readout.Display) (*readout.Result, error)
}

// MediaStore keeps uploaded images.
type MediaStore interface {
	Save(filename string, data []byte) (string, error)
	Remove(rel string) error
}

// Upload is one photo submitted for ingestion.
type Upload struct {
	Filename string
	Data     []byte
	// SessionRef is the requested session; nil or unknown means start a new one.
	SessionRef *uint
	Display    readout.Display
}

// Result is a successfully processed shot.
type Result struct {
	Shot    *models.Shot
	Session *models.Session
	OCR     *readout.Result
}

// ProcessingError reports a failure after the shot was stored: the pipeline
// failed, or its metrics could not be saved. The shot it names has
// processed=false and, when that write succeeded, the failure text in
// processing_errors.
type ProcessingError struct {
	ShotID    uint
	SessionID uint
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("shot %d: %v", e.ShotID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

type Service struct {
	repo     store.Repository
	media    MediaStore
	pipeline Extractor
	now      func() time.Time
	log      *slog.Logger
}

func NewService(repo store.Repository, media MediaStore, pipeline Extractor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, media: media, pipeline: pipeline, now: time.Now, log: logger}
}

// Ingest stores the photo as a new unprocessed shot, runs the pipeline on it
// and records the outcome on the shot. Any failure after the shot row exists is
// returned as a *ProcessingError naming it; any other error means nothing
// usable was stored.
func (s *Service) Ingest(ctx context.Context, up Upload) (*Result, error) {
	if len(up.Data) == 0 {
		return nil, errors.New("ingest: empty image")
	}
	if up.Display == "" {
		up.Display = readout.Compact
	}

	session, err := s.resolveSession(ctx, up.SessionRef)
	if err != nil {
		return nil, err
	}
	image, err := s.media.Save(up.Filename, up.Data)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	shot, err := s.repo.CreateShot(ctx, session, image)
	if err != nil {
		if rmErr := s.media.Remove(image); rmErr != nil {
			s.log.Warn("remove unreferenced image", "image", image, "err", rmErr)
		}
		return nil, fmt.Errorf("ingest: %w", err)
	}

	start := time.Now()
	res, runErr := s.pipeline.Run(ctx, up.Data, up.Display)
	pipelineDuration.WithLabelValues(string(up.Display)).Observe(time.Since(start).Seconds())

	if runErr != nil {
		s.log.Warn("shot processing failed", "shot", shot.ID, "session", session.ID, "err", runErr)
		return nil, s.fail(ctx, shot, session, up.Display, runErr)
	}

	ocrTextLength.Observe(float64(len(res.RawText)))
	conf := res.Confidence
	// patch a copy so a failed write leaves shot clean for the failure record
	next := *shot
	updated, err := s.repo.UpdateShot(ctx, &next, models.ShotPatch{
		Metrics:         res.Metrics,
		Processed:       true,
		ConfidenceScore: &conf,
	})
	if err != nil {
		s.log.Error("save extracted metrics", "shot", shot.ID, "session", session.ID, "err", err)
		return nil, s.fail(ctx, shot, session, up.Display, fmt.Errorf("save metrics: %w", err))
	}
	shot = updated
	shotsIngested.WithLabelValues(string(up.Display), "processed").Inc()
	s.log.Info("shot processed",
		"shot", shot.ID,
		"session", session.ID,
		"display", up.Display,
		"numbers", len(res.Numbers),
		"confidence", conf)
	return &Result{Shot: shot, Session: session, OCR: res}, nil
}

// fail records cause on the stored shot and returns it as a *ProcessingError.
// The record is written with a context that outlives a canceled request.
func (s *Service) fail(ctx context.Context, shot *models.Shot, session *models.Session, d readout.Display, cause error) error {
	shotsIngested.WithLabelValues(string(d), "failed").Inc()
	if _, err := s.repo.UpdateShot(context.WithoutCancel(ctx), shot, models.ShotPatch{ProcessingErrors: cause.Error()}); err != nil {
		s.log.Error("record processing failure", "shot", shot.ID, "err", err)
	}
	return &ProcessingError{ShotID: shot.ID, SessionID: session.ID, Err: cause}
}

func (s *Service) resolveSession(ctx context.Context, ref *uint) (*models.Session, error) {
	if ref != nil {
		session, err := s.repo.FindSession(ctx, *ref)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("ingest: %w", err)
		}
		s.log.Debug("requested session not found, starting a new one", "session", *ref)
	}
	session, err := s.repo.CreateSession(ctx, models.DefaultSessionName(s.now()), "")
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	sessionsCreated.Inc()
	return session, nil
}
