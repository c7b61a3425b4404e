// internal/services/compositor.go
package services

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/ratedarts/fulfillment/internal/models"
)

const previewJPEGQuality = 90

// FrameLayout places the photo inside a frame graphic: (X, Y) is the top
// left corner and Width x Height the size the photo is stretched to.
type FrameLayout struct {
	X      int
	Y      int
	Width  int
	Height int
}

var frameLayouts = map[string]map[models.Framing]FrameLayout{
	"Canvas": {
		models.FramingBlack:    {X: 452, Y: 204, Width: 1494, Height: 1992},
		models.FramingUnframed: {X: 452, Y: 205, Width: 1494, Height: 1992},
	},
	"Paper": {
		models.FramingBlack:    {X: 638, Y: 453, Width: 1122, Height: 1495},
		models.FramingUnframed: {X: 290, Y: 146, Width: 590, Height: 837},
	},
	"Crystal": {
		models.FramingBlack:    {X: 556, Y: 306, Width: 1285, Height: 1788},
		models.FramingUnframed: {X: 269, Y: 132, Width: 631, Height: 882},
	},
}

func FrameLayoutFor(edition string, framing models.Framing) (FrameLayout, bool) {
	byFraming, ok := frameLayouts[edition]
	if !ok {
		return FrameLayout{}, false
	}
	layout, ok := byFraming[framing]
	return layout, ok
}

// FrameAssetKey is the storage key of the overlay for an edition and framing.
func FrameAssetKey(prefix, edition string, framing models.Framing) string {
	return prefix + edition + framing.String() + ".png"
}

// CompositeFramed stretches photo to the layout rectangle and paints it
// over the frame.
func CompositeFramed(frame, photo image.Image, layout FrameLayout) *image.RGBA {
	bounds := frame.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), frame, bounds.Min, draw.Src)

	target := image.Rect(layout.X, layout.Y, layout.X+layout.Width, layout.Y+layout.Height)
	draw.CatmullRom.Scale(canvas, target, photo, photo.Bounds(), draw.Over, nil)

	return canvas
}

func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// ImageWidth reads the pixel width without decoding the full image.
func ImageWidth(data []byte) (int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, nil
}

func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: previewJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
