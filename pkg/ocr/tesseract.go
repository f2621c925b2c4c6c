package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// DefaultWhitelist restricts recognition to digits, decimal point, signs and
// the unit glyphs printed on the simulator screens (mph, ft, °, rpm, /s).
const DefaultWhitelist = "0123456789.-+mph°ft/srp"

// EngineConfig is the static Tesseract configuration. It is built once at
// startup and copied into the engine; nothing mutates it afterwards.
type EngineConfig struct {
	Language       string
	Whitelist      string
	PageSegMode    gosseract.PageSegMode
	TessdataPrefix string
	// Timeout bounds a single recognition call. Zero means no bound beyond the caller's context.
	Timeout time.Duration
}

// DefaultEngineConfig treats the screen as a single uniform block of sparse text.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Language:    "eng",
		Whitelist:   DefaultWhitelist,
		PageSegMode: gosseract.PSM_SINGLE_BLOCK,
		Timeout:     30 * time.Second,
	}
}

// TextEngine turns an encoded image into raw text.
type TextEngine interface {
	Text(ctx context.Context, img []byte) (string, error)
}

// Tesseract runs recognition through libtesseract. A fresh client is created
// per call because gosseract clients are not safe for concurrent use.
type Tesseract struct {
	cfg EngineConfig
	run func(img []byte) (string, error)
}

// NewTesseract returns an engine bound to cfg.
func NewTesseract(cfg EngineConfig) *Tesseract {
	t := &Tesseract{cfg: cfg}
	t.run = t.recognize
	return t
}

// Config returns the engine configuration.
func (t *Tesseract) Config() EngineConfig { return t.cfg }

// Text recognizes img. When the timeout or ctx expires first, Text returns
// without waiting; the abandoned call finishes in the background and its
// client is closed then.
func (t *Tesseract) Text(ctx context.Context, img []byte) (string, error) {
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}
	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := t.run(img)
		done <- outcome{text: text, err: err}
	}()
	select {
	case o := <-done:
		return o.text, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrEngineTimeout, t.cfg.Timeout)
		}
		return "", ctx.Err()
	}
}

func (t *Tesseract) recognize(img []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if t.cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.cfg.TessdataPrefix); err != nil {
			return "", fmt.Errorf("%w: tessdata prefix: %v", ErrEngine, err)
		}
	}
	if err := client.SetLanguage(t.cfg.Language); err != nil {
		return "", fmt.Errorf("%w: language: %v", ErrEngine, err)
	}
	if err := client.SetWhitelist(t.cfg.Whitelist); err != nil {
		return "", fmt.Errorf("%w: whitelist: %v", ErrEngine, err)
	}
	if err := client.SetPageSegMode(t.cfg.PageSegMode); err != nil {
		return "", fmt.Errorf("%w: page segmentation: %v", ErrEngine, err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("%w: set image: %v", ErrEngine, err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngine, err)
	}
	return text, nil
}
