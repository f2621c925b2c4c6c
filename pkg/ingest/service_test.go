package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"shotlog/models"
	"shotlog/pkg/readout"
	"shotlog/pkg/store"
)

type fakeExtractor struct {
	text string
	err  error
	got  []readout.Display
}

func (f *fakeExtractor) Run(_ context.Context, _ []byte, d readout.Display) (*readout.Result, error) {
	f.got = append(f.got, d)
	if f.err != nil {
		return nil, f.err
	}
	return readout.FromText(d, f.text), nil
}

func newTestService(t *testing.T, ex Extractor) (*Service, *store.GormRepository) {
	t.Helper()
	db, err := store.Open("sqlite", filepath.Join(t.TempDir(), "ingest.db"), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := store.NewGormRepository(db)
	svc := NewService(repo, store.NewMedia(t.TempDir()), ex, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2024, 5, 7, 14, 30, 0, 0, time.UTC) }
	return svc, repo
}

func upload(ref *uint) Upload {
	return Upload{Filename: "shot.jpg", Data: []byte("photo"), SessionRef: ref}
}

func TestIngestProcessesShot(t *testing.T) {
	ex := &fakeExtractor{text: "85.3 105.2 162 171"}
	svc, repo := newTestService(t, ex)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, upload(nil))
	require.NoError(t, err)
	assert.Equal(t, []readout.Display{readout.Compact}, ex.got)
	assert.Equal(t, "Session 2024-05-07 14:30", res.Session.Name)
	assert.True(t, res.Shot.Processed)
	assert.Empty(t, res.Shot.ProcessingErrors)
	require.NotNil(t, res.Shot.ConfidenceScore)
	assert.InDelta(t, 1.0, *res.Shot.ConfidenceScore, 1e-9)

	shots, err := repo.ListShots(ctx, res.Session.ID)
	require.NoError(t, err)
	require.Len(t, shots, 1)
	got := shots[0]
	assert.NotEmpty(t, got.Image)
	require.NotNil(t, got.BallSpeed)
	assert.InDelta(t, 85.3, *got.BallSpeed, 1e-9)
	require.NotNil(t, got.TotalDistance)
	assert.InDelta(t, 171, *got.TotalDistance, 1e-9)
	assert.Nil(t, got.SmashFactor)
}

func TestIngestLeavesMissingFieldsNull(t *testing.T) {
	svc, _ := newTestService(t, &fakeExtractor{text: "85.3 mph"})

	res, err := svc.Ingest(context.Background(), upload(nil))
	require.NoError(t, err)
	// "85.3 mph" matches both the mph pass and the bare number pass.
	require.NotNil(t, res.Shot.BallSpeed)
	require.NotNil(t, res.Shot.ClubHeadSpeed)
	assert.Nil(t, res.Shot.CarryDistance)
	assert.Nil(t, res.Shot.TotalDistance)
	assert.InDelta(t, 0.5, *res.Shot.ConfidenceScore, 1e-9)
}

func TestIngestWithoutSessionCreatesOnePerUpload(t *testing.T) {
	svc, _ := newTestService(t, &fakeExtractor{text: "1 2 3 4"})
	ctx := context.Background()

	a, err := svc.Ingest(ctx, upload(nil))
	require.NoError(t, err)
	b, err := svc.Ingest(ctx, upload(nil))
	require.NoError(t, err)
	assert.NotEqual(t, a.Session.ID, b.Session.ID)
}

func TestIngestReusesExistingSession(t *testing.T) {
	svc, repo := newTestService(t, &fakeExtractor{text: "1 2 3 4"})
	ctx := context.Background()
	s, err := repo.CreateSession(ctx, "Range", "")
	require.NoError(t, err)

	res, err := svc.Ingest(ctx, upload(&s.ID))
	require.NoError(t, err)
	assert.Equal(t, s.ID, res.Session.ID)
	assert.Equal(t, s.ID, res.Shot.SessionID)
}

func TestIngestUnknownSessionStartsNewOne(t *testing.T) {
	svc, repo := newTestService(t, &fakeExtractor{text: "1 2 3 4"})
	ctx := context.Background()
	missing := uint(999)

	res, err := svc.Ingest(ctx, upload(&missing))
	require.NoError(t, err)
	assert.NotEqual(t, missing, res.Session.ID)

	_, err = repo.FindSession(ctx, res.Session.ID)
	assert.NoError(t, err)
}

func TestIngestExtendedDisplay(t *testing.T) {
	ex := &fakeExtractor{text: "150 100 1.50 250 270 12.5 2500"}
	svc, _ := newTestService(t, ex)
	up := upload(nil)
	up.Display = readout.Extended

	res, err := svc.Ingest(context.Background(), up)
	require.NoError(t, err)
	assert.Equal(t, []readout.Display{readout.Extended}, ex.got)
	require.NotNil(t, res.Shot.SmashFactor)
	assert.InDelta(t, 1.5, *res.Shot.SmashFactor, 1e-9)
	require.NotNil(t, res.Shot.SpinRate)
	assert.InDelta(t, 2500, *res.Shot.SpinRate, 1e-9)
	assert.Nil(t, res.Shot.SideSpin)
	assert.InDelta(t, 7.0/16.0, *res.Shot.ConfidenceScore, 1e-9)
}

func TestIngestPipelineFailurePersistsError(t *testing.T) {
	svc, repo := newTestService(t, &fakeExtractor{err: errors.New("tesseract exploded")})
	ctx := context.Background()

	res, err := svc.Ingest(ctx, upload(nil))
	assert.Nil(t, res)
	var perr *ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.NotZero(t, perr.ShotID)
	assert.ErrorContains(t, err, "tesseract exploded")

	shots, err := repo.ListShots(ctx, perr.SessionID)
	require.NoError(t, err)
	require.Len(t, shots, 1)
	got := shots[0]
	assert.Equal(t, perr.ShotID, got.ID)
	assert.False(t, got.Processed)
	assert.Equal(t, "tesseract exploded", got.ProcessingErrors)
	assert.Nil(t, got.ConfidenceScore)
	assert.Nil(t, got.BallSpeed)
	assert.NotEmpty(t, got.Image)
}

func TestIngestTimeoutIsProcessingError(t *testing.T) {
	timeout := fmt.Errorf("extract text: %w", context.DeadlineExceeded)
	svc, _ := newTestService(t, &fakeExtractor{err: timeout})

	_, err := svc.Ingest(context.Background(), upload(nil))
	var perr *ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIngestRejectsEmptyImage(t *testing.T) {
	svc, repo := newTestService(t, &fakeExtractor{})
	_, err := svc.Ingest(context.Background(), Upload{Filename: "x.jpg"})
	require.Error(t, err)

	list, err := repo.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

// metricsWriteFails rejects the update that marks a shot processed.
type metricsWriteFails struct {
	store.Repository
}

func (r metricsWriteFails) UpdateShot(ctx context.Context, shot *models.Shot, p models.ShotPatch) (*models.Shot, error) {
	if p.Processed {
		return nil, errors.New("db down")
	}
	return r.Repository.UpdateShot(ctx, shot, p)
}

func TestIngestMetricsSaveFailureNamesShot(t *testing.T) {
	svc, repo := newTestService(t, &fakeExtractor{text: "85.3 105.2 162 171"})
	svc.repo = metricsWriteFails{Repository: repo}
	ctx := context.Background()

	res, err := svc.Ingest(ctx, upload(nil))
	assert.Nil(t, res)
	var perr *ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.NotZero(t, perr.ShotID)
	assert.ErrorContains(t, err, "db down")

	shots, err := repo.ListShots(ctx, perr.SessionID)
	require.NoError(t, err)
	require.Len(t, shots, 1)
	got := shots[0]
	assert.Equal(t, perr.ShotID, got.ID)
	assert.False(t, got.Processed)
	assert.Contains(t, got.ProcessingErrors, "db down")
	assert.Nil(t, got.BallSpeed)
	assert.Nil(t, got.ConfidenceScore)
}
