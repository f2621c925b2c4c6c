package ocr

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// screenPNG renders a dark screen with a few bright bars, roughly like a display photo.
func screenPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{20, 20, 20, 255})
	for y := h / 4; y < h/4+h/8; y++ {
		for x := w / 10; x < w-w/10; x++ {
			img.Set(x, y, color.NRGBA{230, 230, 230, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestPreprocessUpscalesSmallImages(t *testing.T) {
	out, err := Preprocess(screenPNG(t, 320, 120))
	require.NoError(t, err)
	assert.Equal(t, MinHeight, out.Height)
	assert.Equal(t, 1333, out.Width)

	decoded, _, err := image.Decode(bytes.NewReader(out.PNG))
	require.NoError(t, err)
	assert.Equal(t, MinHeight, decoded.Bounds().Dy())
}

func TestPreprocessKeepsLargeImages(t *testing.T) {
	out, err := Preprocess(screenPNG(t, 400, 640))
	require.NoError(t, err)
	assert.Equal(t, 640, out.Height)
	assert.Equal(t, 400, out.Width)
}

func TestPreprocessOutputIsBinary(t *testing.T) {
	out, err := Preprocess(screenPNG(t, 200, 600))
	require.NoError(t, err)
	decoded, _, err := image.Decode(bytes.NewReader(out.PNG))
	require.NoError(t, err)
	b := decoded.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y += 7 {
		for x := b.Min.X; x < b.Max.X; x += 7 {
			g := color.GrayModel.Convert(decoded.At(x, y)).(color.Gray)
			if g.Y != 0 && g.Y != 255 {
				t.Fatalf("pixel (%d,%d) = %d, want 0 or 255", x, y, g.Y)
			}
		}
	}
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	_, err := Preprocess([]byte("definitely not an image"))
	require.ErrorIs(t, err, ErrDecode)
}
