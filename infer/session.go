package infer

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// modelSession runs an ONNX model with a single image input. The input
// tensor is allocated once and refilled by every load.
type modelSession struct {
	kind    ModelKind
	path    string
	session *ort.DynamicAdvancedSession
	input   *ort.Tensor[float32]
	spec    inputSpec
	outputs []string
	params  params

	loaded  bool
	results []output
}

var _ Session = (*modelSession)(nil)

func newModelSession(engine Engine, path string, kind ModelKind, threads int) (*modelSession, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, newError(CodeModelLoad, path, err)
	}
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, newError(CodeModelLoad, path, fmt.Errorf("failed to get model input/output info: %w", err))
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, newError(CodeModelLoad, path, fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs)))
	}
	spec, err := newInputSpec(inputs[0].Name, inputs[0].Dimensions)
	if err != nil {
		return nil, newError(CodeModelLoad, path, err)
	}
	outputNames := make([]string, len(outputs))
	for i, o := range outputs {
		outputNames[i] = o.Name
	}

	session, err := openSession(engine, path, spec.name, outputNames, threads)
	if err != nil {
		return nil, newError(CodeModelLoad, path, err)
	}
	input, err := ort.NewTensor(ort.NewShape(spec.shape()...), make([]float32, spec.size()))
	if err != nil {
		session.Destroy()
		return nil, newError(CodeModelLoad, path, fmt.Errorf("failed to create input tensor: %w", err))
	}

	return &modelSession{
		kind:    kind,
		path:    path,
		session: session,
		input:   input,
		spec:    spec,
		outputs: outputNames,
		params:  defaultParams(),
	}, nil
}

// openSession creates the runtime session on engine, retrying on the CPU
// provider when the accelerator cannot be used.
func openSession(engine Engine, path, input string, outputs []string, threads int) (*ort.DynamicAdvancedSession, error) {
	opts, err := sessionOptions(engine, threads)
	if err == nil {
		var session *ort.DynamicAdvancedSession
		session, err = ort.NewDynamicAdvancedSession(path, []string{input}, outputs, opts)
		opts.Destroy()
		if err == nil || engine == EngineCPU {
			return session, err
		}
	} else if engine == EngineCPU {
		return nil, err
	}
	slog.Warn("Accelerator unavailable, falling back to CPU",
		slog.String("engine", string(engine)),
		slog.String("model", path),
		slog.String("error", err.Error()))

	opts, err = sessionOptions(EngineCPU, threads)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()
	return ort.NewDynamicAdvancedSession(path, []string{input}, outputs, opts)
}

func (s *modelSession) Kind() ModelKind { return s.kind }

func (s *modelSession) SetInt(name string, values ...int32) error {
	return s.params.setInt(name, values)
}

func (s *modelSession) SetFloat(name string, values ...float32) error {
	return s.params.setFloat(name, values)
}

func (s *modelSession) LoadImageFile(path string, roi *image.Rectangle) error {
	if s.session == nil {
		return newError(CodeReleased, "load", nil)
	}
	img, err := decodeFile(path)
	if err != nil {
		return err
	}
	return s.LoadImage(img, roi)
}

func (s *modelSession) LoadImage(img image.Image, roi *image.Rectangle) error {
	if s.session == nil {
		return newError(CodeReleased, "load", nil)
	}
	s.loaded = false
	s.results = s.results[:0]
	src, err := crop(img, roi)
	if err != nil {
		return err
	}
	if err := preprocess(src, s.spec, s.params.norm, s.input.GetData()); err != nil {
		return newError(CodeImageLoad, "preprocess", err)
	}
	s.loaded = true
	return nil
}

func (s *modelSession) Run() error {
	if s.session == nil {
		return newError(CodeReleased, "run", nil)
	}
	if !s.loaded {
		return newError(CodeNoInput, "run", nil)
	}
	s.results = s.results[:0]

	values := make([]ort.Value, len(s.outputs))
	if err := s.session.Run([]ort.Value{s.input}, values); err != nil {
		return newError(CodeInference, s.path, err)
	}
	defer func() {
		for _, v := range values {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	for i, v := range values {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return newError(CodeInference, s.path, fmt.Errorf("output %q has unexpected type %T", s.outputs[i], v))
		}
		s.results = append(s.results, output{
			name:  s.outputs[i],
			shape: append([]int64(nil), t.GetShape()...),
			data:  append([]float32(nil), t.GetData()...),
		})
	}
	return nil
}

func (s *modelSession) Boxes(dst []Box) (int, error) {
	if s.kind != FaceDetection {
		return 0, newError(CodeUnsupported, "boxes", fmt.Errorf("%s model", s.kind))
	}
	if len(s.results) == 0 {
		return 0, newError(CodeNoInput, "boxes", errors.New("model has not been run"))
	}
	boxes, err := decodeFaces(s.results, s.params)
	if err != nil {
		return 0, newError(CodeDecode, "boxes", err)
	}
	return copy(dst, boxes), nil
}

func (s *modelSession) Euler(dst []Euler) (int, error) {
	if s.kind != HeadPose {
		return 0, newError(CodeUnsupported, "euler", fmt.Errorf("%s model", s.kind))
	}
	if len(s.results) == 0 {
		return 0, newError(CodeNoInput, "euler", errors.New("model has not been run"))
	}
	e, err := decodeEuler(s.results)
	if err != nil {
		return 0, newError(CodeDecode, "euler", err)
	}
	if len(dst) == 0 {
		return 0, nil
	}
	dst[0] = e
	return 1, nil
}

func (s *modelSession) Release() error {
	var errs []error
	if s.input != nil {
		errs = append(errs, s.input.Destroy())
		s.input = nil
	}
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
		s.session = nil
	}
	s.results = nil
	s.loaded = false
	return errors.Join(errs...)
}
