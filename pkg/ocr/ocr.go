package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"shotlog/pkg/readout"
)

// Pipeline chains preprocessing, recognition, parsing, field mapping and scoring.
type Pipeline struct {
	engine TextEngine
	log    *slog.Logger
}

// NewPipeline returns a Pipeline that recognizes text with engine.
func NewPipeline(engine TextEngine, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{engine: engine, log: logger}
}

// Run extracts shot metrics from the raw photo bytes. Empty OCR text is not an
// error; it yields a result with no populated fields and zero confidence.
func (p *Pipeline) Run(ctx context.Context, data []byte, d readout.Display) (*readout.Result, error) {
	img, err := Preprocess(data)
	if err != nil {
		return nil, err
	}
	text, err := p.engine.Text(ctx, img.PNG)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	res := readout.FromText(d, text)
	p.log.Debug("ocr pipeline done",
		"display", d,
		"width", img.Width,
		"height", img.Height,
		"numbers", len(res.Numbers),
		"confidence", res.Confidence,
		"text", snippet(text, 180))
	return res, nil
}
