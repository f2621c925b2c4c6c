package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/webp"
)

// MinHeight is the smallest image height handed to the OCR engine.
const MinHeight = 500

// Preprocessing constants tuned for backlit simulator screens.
const (
	bilateralDiameter = 9
	bilateralSigma    = 75
	thresholdBlock    = 11
	thresholdC        = 2
	closeKernel       = 2
)

// Image is a preprocessed, single-channel binarized image encoded as PNG.
type Image struct {
	Width  int
	Height int
	PNG    []byte
}

// Preprocess turns a raw photo into a binarized image suited to digit recognition:
// grayscale, bilateral filter, adaptive Gaussian threshold, 2x2 closing, and a
// cubic upscale to MinHeight when the photo is shorter than that.
func Preprocess(data []byte) (*Image, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if b := src.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	bgr, err := gocv.ImageToMatRGB(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer bgr.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)

	// Bilateral filtering removes sensor and pixel-grid noise but keeps digit edges.
	filtered := gocv.NewMat()
	defer filtered.Close()
	gocv.BilateralFilter(gray, &filtered, bilateralDiameter, bilateralSigma, bilateralSigma)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.AdaptiveThreshold(filtered, &binary, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, thresholdBlock, thresholdC)

	// Closing reconnects strokes broken up by glare.
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(closeKernel, closeKernel))
	defer kernel.Close()
	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(binary, &closed, gocv.MorphClose, kernel)

	out := closed
	if h := closed.Rows(); h < MinHeight {
		w := int(float64(closed.Cols()) * float64(MinHeight) / float64(h))
		if w < 1 {
			w = 1
		}
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(closed, &resized, image.Pt(w, MinHeight), 0, 0, gocv.InterpolationCubic)
		out = resized
	}

	img, err := out.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert preprocessed image: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode preprocessed image: %w", err)
	}
	return &Image{Width: out.Cols(), Height: out.Rows(), PNG: buf.Bytes()}, nil
}
