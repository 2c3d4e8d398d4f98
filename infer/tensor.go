package infer

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/krau/headpose/config"
	"gonum.org/v1/gonum/stat"
)

const defaultInputSize = 224

var errEmptyImage = errors.New("image has no pixels")

var (
	ImagenetMean = [3]float32{0.485, 0.456, 0.406}
	ImagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

type layout int

const (
	layoutNCHW layout = iota
	layoutNHWC
)

// inputSpec describes the single image input of a model.
type inputSpec struct {
	name          string
	layout        layout
	width, height int
}

func (s inputSpec) shape() []int64 {
	if s.layout == layoutNHWC {
		return []int64{1, int64(s.height), int64(s.width), 3}
	}
	return []int64{1, 3, int64(s.height), int64(s.width)}
}

func (s inputSpec) size() int {
	return 3 * s.width * s.height
}

// newInputSpec derives the input layout from the model's declared
// dimensions. Dynamic dimensions fall back to defaultInputSize.
func newInputSpec(name string, dims []int64) (inputSpec, error) {
	if len(dims) != 4 {
		return inputSpec{}, fmt.Errorf("expected 4D input, got %dD", len(dims))
	}
	spec := inputSpec{name: name}
	var h, w int64
	switch {
	case dims[1] == 3:
		spec.layout = layoutNCHW
		h, w = dims[2], dims[3]
	case dims[3] == 3:
		spec.layout = layoutNHWC
		h, w = dims[1], dims[2]
	default:
		return inputSpec{}, fmt.Errorf("input %v has no 3-channel axis", dims)
	}
	spec.height, spec.width = defaultInputSize, defaultInputSize
	if h > 0 {
		spec.height = int(h)
	}
	if w > 0 {
		spec.width = int(w)
	}
	return spec, nil
}

// preprocess resizes img to the model input and writes it into dst using
// the requested normalization. len(dst) must be spec.size().
func preprocess(img image.Image, spec inputSpec, norm config.Norm, dst []float32) error {
	if len(dst) != spec.size() {
		return fmt.Errorf("tensor holds %d values, need %d", len(dst), spec.size())
	}
	if img == nil || img.Bounds().Empty() {
		return errEmptyImage
	}
	resized := imaging.Resize(img, spec.width, spec.height, imaging.Linear)

	plane := spec.width * spec.height
	for y := 0; y < spec.height; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < spec.width; x++ {
			px := row[x*4 : x*4+3]
			i := y*spec.width + x
			for c := 0; c < 3; c++ {
				if spec.layout == layoutNHWC {
					dst[i*3+c] = float32(px[c])
				} else {
					dst[c*plane+i] = float32(px[c])
				}
			}
		}
	}

	normalize(dst, spec.layout, plane, norm)
	return nil
}

func normalize(data []float32, l layout, plane int, norm config.Norm) {
	switch norm {
	case config.NormUnsigned:
		for i := range data {
			data[i] /= 255
		}
	case config.NormSigned:
		for i := range data {
			data[i] = data[i]/127.5 - 1
		}
	case config.NormWhitening:
		whiten(data)
	case config.NormImagenet:
		for i := range data {
			c := i / plane
			if l == layoutNHWC {
				c = i % 3
			}
			data[i] = (data[i]/255 - ImagenetMean[c]) / ImagenetStd[c]
		}
	}
}

// whiten standardizes data to zero mean and unit variance, bounding the
// divisor below by 1/sqrt(N) so flat images stay finite.
func whiten(data []float32) {
	if len(data) == 0 {
		return
	}
	xs := make([]float64, len(data))
	for i, v := range data {
		xs[i] = float64(v)
	}
	mean, std := stat.PopMeanStdDev(xs, nil)
	std = math.Max(std, 1/math.Sqrt(float64(len(xs))))
	for i, v := range xs {
		data[i] = float32((v - mean) / std)
	}
}
