// Package pipelinetest provides an in-memory inference provider for
// exercising the pipeline without model files or ONNX Runtime.
package pipelinetest

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/krau/headpose/infer"
)

// Image describes a fake image file: its size and the faces the detector
// reports for it.
type Image struct {
	Width, Height int
	Faces         []infer.Box
}

// Provider hands out fake sessions. Fields must be set before the first
// session is created.
type Provider struct {
	// Images maps paths to fake files; unknown paths fail to load.
	Images map[string]Image
	// Decoded lists the faces reported for in-memory images.
	Decoded []infer.Box
	// Pose is returned by every orientation decode.
	Pose infer.Euler

	FaceModel  bool
	ModelErr   error
	LoadErr    error
	RunErr     error
	BoxesErr   error
	EulerEmpty bool

	mu       sync.Mutex
	events   []string
	sessions []*Session
}

func (p *Provider) record(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, fmt.Sprintf(format, args...))
}

// Events returns the provider calls seen so far, in order.
func (p *Provider) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// Sessions returns every session created so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

func (p *Provider) newSession(kind infer.ModelKind) *Session {
	s := &Session{
		p:      p,
		kind:   kind,
		Ints:   map[string]int32{},
		Floats: map[string]float32{},
	}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s
}

func (p *Provider) NewSession(engine, model string) (infer.Session, error) {
	p.record("new %s %s", engine, model)
	if p.ModelErr != nil {
		return nil, p.ModelErr
	}
	return p.newSession(infer.HeadPose), nil
}

func (p *Provider) Probe(engine string, kind infer.ModelKind) (infer.Session, bool) {
	p.record("probe %s %s", engine, kind)
	if !p.FaceModel || kind != infer.FaceDetection {
		return nil, false
	}
	return p.newSession(infer.FaceDetection), true
}

func (p *Provider) ImageResolution(path string) (int, int, error) {
	img, ok := p.Images[path]
	if !ok {
		return 0, 0, &infer.Error{Code: infer.CodeImageLoad, Op: path}
	}
	return img.Width, img.Height, nil
}

// Session is a fake infer.Session recording its configuration.
type Session struct {
	p    *Provider
	kind infer.ModelKind

	Ints   map[string]int32
	Floats map[string]float32
	// ROIs lists the crop of every load, nil for whole images.
	ROIs     []*image.Rectangle
	Released bool

	faces  []infer.Box
	loaded bool
	ran    bool
}

var _ infer.Session = (*Session)(nil)

func (s *Session) Kind() infer.ModelKind { return s.kind }

func (s *Session) SetInt(name string, values ...int32) error {
	if len(values) != 1 {
		return infer.ErrInvalidParameter
	}
	s.Ints[name] = values[0]
	return nil
}

func (s *Session) SetFloat(name string, values ...float32) error {
	if len(values) != 1 {
		return infer.ErrInvalidParameter
	}
	s.Floats[name] = values[0]
	return nil
}

func (s *Session) LoadImageFile(path string, roi *image.Rectangle) error {
	s.p.record("load %s %s %v", s.kind, path, roiString(roi))
	img, ok := s.p.Images[path]
	if !ok {
		s.loaded = false
		return &infer.Error{Code: infer.CodeImageLoad, Op: path, Err: errors.New("no such file")}
	}
	s.faces = img.Faces
	return s.load(roi)
}

func (s *Session) LoadImage(img image.Image, roi *image.Rectangle) error {
	s.p.record("load %s <image> %v", s.kind, roiString(roi))
	if img == nil {
		s.loaded = false
		return infer.ErrImageLoad
	}
	s.faces = s.p.Decoded
	return s.load(roi)
}

func (s *Session) load(roi *image.Rectangle) error {
	if s.Released {
		return infer.ErrReleased
	}
	if s.p.LoadErr != nil {
		s.loaded = false
		return s.p.LoadErr
	}
	if roi != nil {
		r := *roi
		roi = &r
	}
	s.ROIs = append(s.ROIs, roi)
	s.loaded = true
	s.ran = false
	return nil
}

func (s *Session) Run() error {
	if !s.loaded {
		return infer.ErrNoInput
	}
	if s.p.RunErr != nil {
		return s.p.RunErr
	}
	s.ran = true
	return nil
}

func (s *Session) Boxes(dst []infer.Box) (int, error) {
	if s.kind != infer.FaceDetection {
		return 0, infer.ErrUnsupported
	}
	if !s.ran {
		return 0, infer.ErrNoInput
	}
	if s.p.BoxesErr != nil {
		return 0, s.p.BoxesErr
	}
	return copy(dst, s.faces), nil
}

func (s *Session) Euler(dst []infer.Euler) (int, error) {
	if s.kind != infer.HeadPose {
		return 0, infer.ErrUnsupported
	}
	if !s.ran {
		return 0, infer.ErrNoInput
	}
	if s.p.EulerEmpty || len(dst) == 0 {
		return 0, nil
	}
	dst[0] = s.p.Pose
	return 1, nil
}

func (s *Session) Release() error {
	s.p.record("release %s", s.kind)
	s.Released = true
	return nil
}

func roiString(roi *image.Rectangle) string {
	if roi == nil {
		return "full"
	}
	return roi.String()
}
