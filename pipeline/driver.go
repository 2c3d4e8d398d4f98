// Package pipeline sequences the face detection and head pose sessions.
package pipeline

import (
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/krau/headpose/config"
	"github.com/krau/headpose/infer"
)

// Provider is the part of infer.Provider the driver depends on.
type Provider interface {
	NewSession(engine, model string) (infer.Session, error)
	Probe(engine string, kind infer.ModelKind) (infer.Session, bool)
	ImageResolution(path string) (int, int, error)
}

// Source is one input image, either a file or an already decoded image.
type Source struct {
	Path  string
	Image image.Image
}

func FromFile(path string) Source { return Source{Path: path} }

func FromImage(name string, img image.Image) Source { return Source{Path: name, Image: img} }

func (s Source) load(sess infer.Session, roi *image.Rectangle) error {
	if s.Image != nil {
		return sess.LoadImage(s.Image, roi)
	}
	return sess.LoadImageFile(s.Path, roi)
}

type Timing struct {
	Load, Infer, Decode time.Duration
}

type FaceResult struct {
	Index       int
	Box         infer.Box
	Orientation infer.Euler
	Timing      Timing
}

type ImageResult struct {
	Path          string
	Width, Height int
	// TwoStage is set when Faces come from the face detector; otherwise
	// Faces holds exactly one whole-image estimate.
	TwoStage bool
	Faces    []FaceResult
}

// Driver owns a pose session and, in two-stage mode, a face detection
// session. A Driver is not safe for concurrent use.
type Driver struct {
	cfg   config.Config
	pose  infer.Session
	faces infer.Session

	resolution   func(string) (int, int, error)
	boxes        []infer.Box
	orientations []infer.Euler
}

// New acquires the sessions described by cfg. Anything acquired before a
// failure is released again.
func New(cfg config.Config, provider Provider) (*Driver, error) {
	cfg = cfg.Clamped()

	pose, err := provider.NewSession(cfg.Engine, cfg.Model)
	if err != nil {
		return nil, &StageError{Stage: StageModel, Path: cfg.Model, Err: err}
	}
	d := &Driver{
		cfg:          cfg,
		pose:         pose,
		resolution:   provider.ImageResolution,
		boxes:        make([]infer.Box, cfg.MaxDetection),
		orientations: make([]infer.Euler, 1),
	}
	if err := pose.SetInt(infer.ParamNormalization, int32(cfg.Norm)); err != nil {
		d.Close()
		return nil, &StageError{Stage: StageModel, Path: cfg.Model, Err: err}
	}

	if !cfg.FaceDetect {
		return d, nil
	}
	faces, ok := provider.Probe(cfg.Engine, infer.FaceDetection)
	if !ok {
		slog.Debug("No face detection model found", slog.String("engine", cfg.Engine))
		return d, nil
	}
	d.faces = faces
	if err := configureFaces(faces, cfg); err != nil {
		d.Close()
		return nil, &StageError{Stage: StageModel, Path: "face detection", Err: err}
	}
	return d, nil
}

// configureFaces applies the detection limits. The face model always sees
// raw pixels; --norm only concerns the pose model.
func configureFaces(s infer.Session, cfg config.Config) error {
	return errors.Join(
		s.SetInt(infer.ParamMaxDetection, int32(cfg.MaxDetection)),
		s.SetFloat(infer.ParamScoreThreshold, cfg.ScoreThreshold),
		s.SetFloat(infer.ParamIoUThreshold, cfg.IoUThreshold),
		s.SetInt(infer.ParamNormalization, int32(config.NormRaw)),
	)
}

// TwoStage reports whether images go through face detection first.
func (d *Driver) TwoStage() bool {
	return d.faces != nil
}

// Estimate runs the pipeline on one image.
func (d *Driver) Estimate(src Source) (*ImageResult, error) {
	var (
		res *ImageResult
		err error
	)
	if d.TwoStage() {
		res, err = d.estimateFaces(src)
	} else {
		res, err = d.estimateWhole(src)
	}
	if err != nil {
		return nil, err
	}
	slog.Debug("Processed image", slog.String("path", src.Path), slog.Int("faces", len(res.Faces)))
	return res, nil
}

func (d *Driver) estimateWhole(src Source) (*ImageResult, error) {
	face, err := d.estimatePose(src, nil)
	if err != nil {
		return nil, err
	}
	return &ImageResult{Path: src.Path, Faces: []FaceResult{face}}, nil
}

func (d *Driver) estimateFaces(src Source) (*ImageResult, error) {
	res := &ImageResult{Path: src.Path, TwoStage: true}
	if src.Image != nil {
		b := src.Image.Bounds()
		res.Width, res.Height = b.Dx(), b.Dy()
	} else {
		w, h, err := d.resolution(src.Path)
		if err != nil {
			return nil, &StageError{Stage: StageLoad, Path: src.Path, Err: err}
		}
		res.Width, res.Height = w, h
	}

	if err := src.load(d.faces, nil); err != nil {
		return nil, &StageError{Stage: StageLoad, Path: src.Path, Err: err}
	}
	if err := d.faces.Run(); err != nil {
		return nil, &StageError{Stage: StageRun, Path: src.Path, Err: err}
	}
	n, err := d.faces.Boxes(d.boxes)
	if err != nil {
		return nil, &StageError{Stage: StageDetect, Path: src.Path, Err: err}
	}

	res.Faces = make([]FaceResult, 0, n)
	for j, box := range d.boxes[:n] {
		roi := box.ROI(res.Width, res.Height)
		face, err := d.estimatePose(src, &roi)
		if err != nil {
			return nil, err
		}
		face.Index = j
		face.Box = box
		res.Faces = append(res.Faces, face)
	}
	return res, nil
}

// estimatePose estimates a single orientation from src cropped to roi.
func (d *Driver) estimatePose(src Source, roi *image.Rectangle) (FaceResult, error) {
	var face FaceResult

	start := time.Now()
	if err := src.load(d.pose, roi); err != nil {
		return face, &StageError{Stage: StageLoad, Path: src.Path, Err: err}
	}
	face.Timing.Load = time.Since(start)

	start = time.Now()
	if err := d.pose.Run(); err != nil {
		return face, &StageError{Stage: StageRun, Path: src.Path, Err: err}
	}
	face.Timing.Infer = time.Since(start)

	start = time.Now()
	n, err := d.pose.Euler(d.orientations)
	if err == nil && n == 0 {
		err = errors.New("no orientation returned")
	}
	if err != nil {
		return face, &StageError{Stage: StageDecode, Path: src.Path, Err: err}
	}
	face.Timing.Decode = time.Since(start)
	face.Orientation = d.orientations[0]
	return face, nil
}

// Close releases the face session, then the pose session. It is safe to
// call more than once.
func (d *Driver) Close() error {
	var errs []error
	if d.faces != nil {
		errs = append(errs, d.faces.Release())
		d.faces = nil
	}
	if d.pose != nil {
		errs = append(errs, d.pose.Release())
		d.pose = nil
	}
	return errors.Join(errs...)
}
