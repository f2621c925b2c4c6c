package ocr

import "errors"

var (
	// ErrDecode is returned when the uploaded bytes are not a readable image.
	ErrDecode = errors.New("decode image")
	// ErrEngine wraps failures reported by the OCR engine itself.
	ErrEngine = errors.New("ocr engine")
	// ErrEngineTimeout is returned when the OCR engine does not answer within EngineConfig.Timeout.
	ErrEngineTimeout = errors.New("ocr engine timed out")
)
