package infer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

var errEmptyROI = errors.New("region of interest does not overlap the image")

// decodeFile decodes the image at path onto a zero-origin canvas the size
// reported by ImageResolution, so boxes found on it map back to the same
// pixel grid. Formats that decode a sub-frame (GIF) keep the frame offset.
func decodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(CodeImageLoad, path, err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, newError(CodeImageLoad, path, err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, newError(CodeImageLoad, path, err)
	}
	return toCanvas(img, cfg.Width, cfg.Height), nil
}

func toCanvas(img image.Image, width, height int) image.Image {
	if img.Bounds() == image.Rect(0, 0, width, height) {
		return img
	}
	return imaging.Paste(imaging.New(width, height, color.Transparent), img, img.Bounds().Min)
}

// ImageResolution reads the pixel size of the image at path without
// decoding the pixel data.
func ImageResolution(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, newError(CodeImageLoad, path, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, newError(CodeImageLoad, path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// crop returns img restricted to roi. roi is relative to the top-left
// corner of img and is clipped to its bounds.
func crop(img image.Image, roi *image.Rectangle) (image.Image, error) {
	if img == nil {
		return nil, newError(CodeImageLoad, "", errors.New("nil image"))
	}
	if roi == nil {
		return img, nil
	}
	b := img.Bounds()
	r := roi.Canon().Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, newError(CodeImageLoad, fmt.Sprintf("crop %v", *roi), errEmptyROI)
	}
	return imaging.Crop(img, r), nil
}
