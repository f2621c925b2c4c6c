package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shotlog/pkg/readout"
)

type fakeEngine struct {
	text   string
	err    error
	height int
}

func (f *fakeEngine) Text(_ context.Context, img []byte) (string, error) {
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(img)); err == nil {
		f.height = cfg.Height
	}
	return f.text, f.err
}

func TestPipelineRunCompact(t *testing.T) {
	engine := &fakeEngine{text: "150.2\n104.9\n245\n262"}
	p := NewPipeline(engine, nil)

	res, err := p.Run(context.Background(), screenPNG(t, 300, 100), readout.Compact)
	require.NoError(t, err)
	assert.Equal(t, MinHeight, engine.height)
	assert.Equal(t, []float64{150.2, 104.9, 245, 262}, res.Numbers)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.Equal(t, "150.2\n104.9\n245\n262", res.RawText)

	data := res.Data()
	require.Len(t, data, 4)
	assert.Equal(t, 245.0, *data["carry_distance"])
	assert.Equal(t, 262.0, *data["total_distance"])
}

func TestPipelineRunEmptyText(t *testing.T) {
	p := NewPipeline(&fakeEngine{}, nil)
	res, err := p.Run(context.Background(), screenPNG(t, 300, 100), readout.Extended)
	require.NoError(t, err)
	assert.Empty(t, res.Numbers)
	assert.Zero(t, res.Confidence)
	data := res.Data()
	require.Len(t, data, 16)
	for k, v := range data {
		assert.Nil(t, v, k)
	}
}

func TestPipelineRunEngineError(t *testing.T) {
	p := NewPipeline(&fakeEngine{err: ErrEngine}, nil)
	_, err := p.Run(context.Background(), screenPNG(t, 300, 100), readout.Compact)
	require.ErrorIs(t, err, ErrEngine)
}

func TestPipelineRunDecodeError(t *testing.T) {
	engine := &fakeEngine{text: "1"}
	p := NewPipeline(engine, nil)
	_, err := p.Run(context.Background(), []byte{0x00, 0x01}, readout.Compact)
	require.ErrorIs(t, err, ErrDecode)
	assert.Zero(t, engine.height, "engine must not run on undecodable input")
}

func TestTesseractTimeout(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Timeout = 20 * time.Millisecond
	engine := NewTesseract(cfg)
	release := make(chan struct{})
	defer close(release)
	engine.run = func([]byte) (string, error) {
		<-release
		return "late", nil
	}

	start := time.Now()
	_, err := engine.Text(context.Background(), nil)
	require.ErrorIs(t, err, ErrEngineTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTesseractCanceled(t *testing.T) {
	engine := NewTesseract(EngineConfig{})
	release := make(chan struct{})
	defer close(release)
	engine.run = func([]byte) (string, error) {
		<-release
		return "", nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Text(ctx, nil)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestTesseractPassesResult(t *testing.T) {
	engine := NewTesseract(DefaultEngineConfig())
	engine.run = func([]byte) (string, error) { return "98 mph", nil }
	text, err := engine.Text(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "98 mph", text)
}

func TestDefaultEngineConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	assert.Equal(t, "eng", cfg.Language)
	for _, r := range "0123456789.-+mph°ft/srp" {
		assert.Contains(t, cfg.Whitelist, string(r))
	}
	assert.Positive(t, cfg.Timeout)
}
