package infer

import (
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/krau/headpose/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestNewInputSpec(t *testing.T) {
	spec, err := newInputSpec("input", []int64{1, 3, 112, 96})
	require.NoError(t, err)
	assert.Equal(t, inputSpec{name: "input", layout: layoutNCHW, width: 96, height: 112}, spec)
	assert.Equal(t, []int64{1, 3, 112, 96}, spec.shape())

	spec, err = newInputSpec("input", []int64{-1, 64, 64, 3})
	require.NoError(t, err)
	assert.Equal(t, layoutNHWC, spec.layout)
	assert.Equal(t, []int64{1, 64, 64, 3}, spec.shape())

	spec, err = newInputSpec("input", []int64{-1, 3, -1, -1})
	require.NoError(t, err)
	assert.Equal(t, defaultInputSize, spec.width)
	assert.Equal(t, defaultInputSize, spec.height)

	_, err = newInputSpec("input", []int64{1, 224, 224})
	assert.Error(t, err)
	_, err = newInputSpec("input", []int64{1, 1, 224, 224})
	assert.Error(t, err)
}

func TestPreprocessNormalization(t *testing.T) {
	img := solid(8, 8, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	spec := inputSpec{layout: layoutNCHW, width: 4, height: 4}
	plane := spec.width * spec.height

	cases := []struct {
		norm    config.Norm
		r, g, b float32
	}{
		{config.NormRaw, 255, 0, 51},
		{config.NormUnsigned, 1, 0, 0.2},
		{config.NormSigned, 1, -1, 51/127.5 - 1},
		{config.NormImagenet, (1 - 0.485) / 0.229, (0 - 0.456) / 0.224, (0.2 - 0.406) / 0.225},
	}
	for _, tc := range cases {
		t.Run(tc.norm.String(), func(t *testing.T) {
			dst := make([]float32, spec.size())
			require.NoError(t, preprocess(img, spec, tc.norm, dst))
			assert.InDelta(t, tc.r, dst[0], 1e-4)
			assert.InDelta(t, tc.g, dst[plane], 1e-4)
			assert.InDelta(t, tc.b, dst[2*plane+plane-1], 1e-4)
		})
	}
}

func TestPreprocessNHWC(t *testing.T) {
	img := solid(2, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	spec := inputSpec{layout: layoutNHWC, width: 2, height: 2}
	dst := make([]float32, spec.size())
	require.NoError(t, preprocess(img, spec, config.NormImagenet, dst))
	for i := 0; i < 4; i++ {
		assert.InDelta(t, (10.0/255-ImagenetMean[0])/ImagenetStd[0], dst[i*3], 1e-4)
		assert.InDelta(t, (20.0/255-ImagenetMean[1])/ImagenetStd[1], dst[i*3+1], 1e-4)
		assert.InDelta(t, (30.0/255-ImagenetMean[2])/ImagenetStd[2], dst[i*3+2], 1e-4)
	}
}

func TestPreprocessSizeMismatch(t *testing.T) {
	spec := inputSpec{width: 4, height: 4}
	assert.Error(t, preprocess(solid(4, 4, color.NRGBA{}), spec, config.NormRaw, make([]float32, 3)))
}

func TestWhiten(t *testing.T) {
	data := []float32{1, 2, 3, 4}
	whiten(data)
	var sum float32
	for _, v := range data {
		sum += v
	}
	assert.InDelta(t, 0, sum, 1e-5)
	assert.InDelta(t, -1.3416, data[0], 1e-3)

	flat := []float32{7, 7, 7, 7}
	whiten(flat)
	for _, v := range flat {
		assert.Equal(t, float32(0), v)
	}
}

func TestCrop(t *testing.T) {
	img := solid(100, 50, color.NRGBA{A: 255})

	out, err := crop(img, nil)
	require.NoError(t, err)
	assert.Same(t, img, out)

	out, err = crop(img, &image.Rectangle{Min: image.Pt(10, 10), Max: image.Pt(40, 30)})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 30, 20), out.Bounds())

	// Clipped to the image.
	out, err = crop(img, &image.Rectangle{Min: image.Pt(90, 40), Max: image.Pt(200, 200)})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 10), out.Bounds())

	_, err = crop(img, &image.Rectangle{Min: image.Pt(200, 200), Max: image.Pt(300, 300)})
	assert.ErrorIs(t, err, ErrImageLoad)

	_, err = crop(img, &image.Rectangle{Min: image.Pt(10, 10), Max: image.Pt(10, 40)})
	assert.ErrorIs(t, err, ErrImageLoad)
}

func TestImageResolution(t *testing.T) {
	path := writePNG(t, solid(37, 21, color.NRGBA{A: 255}))
	w, h, err := ImageResolution(path)
	require.NoError(t, err)
	assert.Equal(t, 37, w)
	assert.Equal(t, 21, h)

	_, _, err = ImageResolution(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, ErrImageLoad)

	notImage := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(notImage, []byte("hello"), 0o644))
	_, _, err = ImageResolution(notImage)
	assert.ErrorIs(t, err, ErrImageLoad)
}

func TestDecodeFile(t *testing.T) {
	path := writePNG(t, solid(5, 6, color.NRGBA{R: 1, A: 255}))
	img, err := decodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 5, 6), img.Bounds())

	_, err = decodeFile(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.ErrorIs(t, err, ErrImageLoad)
}

func TestCropOffsetImage(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	img := solid(40, 40, color.NRGBA{A: 255})
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			img.SetNRGBA(x, y, red)
		}
	}
	sub := img.SubImage(image.Rect(10, 10, 40, 40))

	out, err := crop(sub, &image.Rectangle{Max: image.Pt(10, 10)})
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 10, 10), out.Bounds())
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			assert.Equal(t, red, color.NRGBAModel.Convert(out.At(x, y)), "pixel %d,%d", x, y)
		}
	}

	out, err = crop(sub, &image.Rectangle{Min: image.Pt(25, 25), Max: image.Pt(60, 60)})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 5, 5), out.Bounds())
}

func TestPreprocessEmptyImage(t *testing.T) {
	spec := inputSpec{width: 2, height: 2}
	err := preprocess(image.NewNRGBA(image.Rectangle{}), spec, config.NormRaw, make([]float32, spec.size()))
	assert.ErrorIs(t, err, errEmptyImage)
}

// writeOffsetGIF writes a 140x140 GIF whose only frame covers
// (20,20)-(120,120) in red.
func writeOffsetGIF(t *testing.T) string {
	t.Helper()
	frame := image.NewPaletted(image.Rect(20, 20, 120, 120),
		color.Palette{color.Black, color.NRGBA{R: 255, A: 255}})
	for i := range frame.Pix {
		frame.Pix[i] = 1
	}
	path := filepath.Join(t.TempDir(), "offset.gif")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, gif.EncodeAll(f, &gif.GIF{
		Image:  []*image.Paletted{frame},
		Delay:  []int{0},
		Config: image.Config{Width: 140, Height: 140},
	}))
	return path
}

func TestDecodeFileOffsetFrame(t *testing.T) {
	path := writeOffsetGIF(t)
	w, h, err := ImageResolution(path)
	require.NoError(t, err)

	img, err := decodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, w, h), img.Bounds())
	_, _, _, a := img.At(5, 5).RGBA()
	assert.Zero(t, a)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, color.NRGBAModel.Convert(img.At(25, 25)))

	// A box in the top-left corner lies outside the frame but still
	// inside the canvas.
	roi := Box{XMax: 0.1, YMax: 0.1}.ROI(w, h)
	out, err := crop(img, &roi)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 14, 14), out.Bounds())

	spec := inputSpec{layout: layoutNCHW, width: 4, height: 4}
	dst := make([]float32, spec.size())
	require.NoError(t, preprocess(out, spec, config.NormRaw, dst))

	roi = Box{XMin: 0.25, YMin: 0.25, XMax: 0.5, YMax: 0.5}.ROI(w, h)
	out, err = crop(img, &roi)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 35, 35), out.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, color.NRGBAModel.Convert(out.At(0, 0)))
}
