package infer

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sort"

	pigo "github.com/esimov/pigo/core"
)

// qualityKnee is the pigo detection quality mapped to a score of 0.5.
const qualityKnee = 5.0

// cascadeSession detects faces with a pigo pixel-intensity cascade. It runs
// on the CPU whatever engine was requested.
type cascadeSession struct {
	path       string
	classifier *pigo.Pigo
	params     params

	minSize    int
	pixels     []uint8
	rows, cols int
	dets       []pigo.Detection
	ran        bool
}

var _ Session = (*cascadeSession)(nil)

func newCascadeSession(path string) (*cascadeSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(CodeModelLoad, path, err)
	}
	// Unpack returns the number of cascade trees, the tree depth, the
	// threshold and the predictions from the leaf nodes.
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, newError(CodeModelLoad, path, fmt.Errorf("error unpacking the cascade file: %w", err))
	}
	return &cascadeSession{
		path:       path,
		classifier: classifier,
		params:     defaultParams(),
		minSize:    20,
	}, nil
}

func (s *cascadeSession) Kind() ModelKind { return FaceDetection }

func (s *cascadeSession) SetInt(name string, values ...int32) error {
	return s.params.setInt(name, values)
}

func (s *cascadeSession) SetFloat(name string, values ...float32) error {
	return s.params.setFloat(name, values)
}

func (s *cascadeSession) LoadImageFile(path string, roi *image.Rectangle) error {
	if s.classifier == nil {
		return newError(CodeReleased, "load", nil)
	}
	img, err := decodeFile(path)
	if err != nil {
		return err
	}
	return s.LoadImage(img, roi)
}

func (s *cascadeSession) LoadImage(img image.Image, roi *image.Rectangle) error {
	if s.classifier == nil {
		return newError(CodeReleased, "load", nil)
	}
	s.pixels = nil
	s.dets = nil
	s.ran = false
	src, err := crop(img, roi)
	if err != nil {
		return err
	}
	nrgba := pigo.ImgToNRGBA(src)
	s.pixels = pigo.RgbToGrayscale(nrgba)
	s.cols, s.rows = nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	return nil
}

func (s *cascadeSession) Run() error {
	if s.classifier == nil {
		return newError(CodeReleased, "run", nil)
	}
	if s.pixels == nil {
		return newError(CodeNoInput, "run", nil)
	}
	cParams := pigo.CascadeParams{
		MinSize:     s.minSize,
		MaxSize:     max(s.rows, s.cols),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,

		ImageParams: pigo.ImageParams{
			Pixels: s.pixels,
			Rows:   s.rows,
			Cols:   s.cols,
			Dim:    s.cols,
		},
	}
	// The result contains quadruplets representing the row, column, scale
	// and detection score.
	dets := s.classifier.RunCascade(cParams, 0)
	s.dets = s.classifier.ClusterDetections(dets, float64(s.params.iouThreshold))
	s.ran = true
	return nil
}

func (s *cascadeSession) Boxes(dst []Box) (int, error) {
	if !s.ran {
		return 0, newError(CodeNoInput, "boxes", errors.New("model has not been run"))
	}
	boxes := detectionBoxes(s.dets, s.cols, s.rows, s.params)
	return copy(dst, boxes), nil
}

func (s *cascadeSession) Euler([]Euler) (int, error) {
	return 0, newError(CodeUnsupported, "euler", errors.New("cascade face detector"))
}

func (s *cascadeSession) Release() error {
	s.classifier = nil
	s.pixels = nil
	s.dets = nil
	s.ran = false
	return nil
}

// detectionBoxes converts pigo detections, centred squares in pixels, to
// normalized boxes sorted by descending score.
func detectionBoxes(dets []pigo.Detection, cols, rows int, p params) []Box {
	if cols <= 0 || rows <= 0 {
		return nil
	}
	var boxes []Box
	for _, d := range dets {
		score := qualityScore(d.Q)
		if score < p.scoreThreshold {
			continue
		}
		half := float32(d.Scale) / 2
		boxes = append(boxes, Box{
			XMin:  clamp01((float32(d.Col) - half) / float32(cols)),
			YMin:  clamp01((float32(d.Row) - half) / float32(rows)),
			XMax:  clamp01((float32(d.Col) + half) / float32(cols)),
			YMax:  clamp01((float32(d.Row) + half) / float32(rows)),
			Score: score,
		})
	}
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Score > boxes[j].Score
	})
	if len(boxes) > p.maxDetection {
		boxes = boxes[:p.maxDetection]
	}
	return boxes
}

// qualityScore maps an unbounded pigo quality onto [0,1).
func qualityScore(q float32) float32 {
	if q <= 0 {
		return 0
	}
	return q / (q + qualityKnee)
}
