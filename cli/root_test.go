package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/krau/headpose/config"
	"github.com/krau/headpose/infer"
	"github.com/krau/headpose/pipeline"
	"github.com/krau/headpose/pipeline/pipelinetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	stdout, stderr bytes.Buffer
	level          slog.LevelVar
	provider       *pipelinetest.Provider
	cfg            config.Config
	providerCalls  int
	released       int
	served         bool
}

func newHarness(t *testing.T) *harness {
	t.Setenv(config.ModelPathEnv, "")
	t.Setenv(config.LibonnxPathEnv, "")
	return &harness{
		provider: &pipelinetest.Provider{
			FaceModel: true,
			Pose:      infer.Euler{Yaw: 1, Pitch: 2, Roll: 3},
			Images: map[string]pipelinetest.Image{
				"a.jpg": {Width: 200, Height: 100, Faces: []infer.Box{
					{XMin: 0, YMin: 0, XMax: 0.5, YMax: 1, Score: 0.9},
					{XMin: 0.5, YMin: 0, XMax: 1, YMax: 1, Score: 0.8},
				}},
				"b.jpg": {Width: 10, Height: 10},
			},
		},
	}
}

func (h *harness) run(t *testing.T, args ...string) int {
	t.Helper()
	// Keep a stray config.toml in the working directory out of the test.
	args = append([]string{"--config", filepath.Join(t.TempDir(), "none.toml")}, args...)
	deps := Deps{
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		Level:  &h.level,
		Provider: func(cfg config.Config) (pipeline.Provider, func(), error) {
			h.providerCalls++
			h.cfg = cfg
			return h.provider, func() { h.released++ }, nil
		},
		Version: func(config.Config) string { return "1.2.3" },
		Serve: func(ctx context.Context, cfg config.Config, _ pipeline.Provider) error {
			h.served = true
			h.cfg = cfg
			return nil
		},
	}
	return Execute(context.Background(), deps, args)
}

func (h *harness) faces(t *testing.T) *pipelinetest.Session {
	t.Helper()
	for _, s := range h.provider.Sessions() {
		if s.Kind() == infer.FaceDetection {
			return s
		}
	}
	t.Fatal("no face session")
	return nil
}

func TestHelp(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 0, h.run(t, "--help"))
	assert.Contains(t, h.stdout.String(), usageLine)
	assert.Contains(t, h.stdout.String(), "--max_detection")
	assert.Zero(t, h.providerCalls)

	h = newHarness(t)
	assert.Equal(t, 0, h.run(t, "-h"))
	assert.Contains(t, h.stdout.String(), "--no_detect")
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 0, h.run(t, "-v"))
	assert.Equal(t, "Head pose sample with ONNX Runtime 1.2.3\n", h.stdout.String())
	assert.Zero(t, h.providerCalls)
}

func TestMissingModel(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.run(t, "-e", "cpu"))
	assert.Equal(t, errMissingModel.Error()+"\n", h.stderr.String())
	assert.Zero(t, h.providerCalls)
	assert.Empty(t, h.provider.Events())
}

func TestMissingImages(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.run(t, "pose.onnx"))
	assert.Contains(t, h.stderr.String(), pipeline.ErrNoImages.Error())
	assert.Zero(t, h.providerCalls)
}

func TestUnsupportedNorm(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.run(t, "-n", "zscore", "pose.onnx", "a.jpg"))
	assert.Equal(t, "unsupported image normalization method: zscore\n", h.stderr.String())
	assert.Zero(t, h.providerCalls)
	assert.Empty(t, h.provider.Events())
	assert.Empty(t, h.stdout.String())
}

func TestInvalidFlag(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.run(t, "-x", "pose.onnx", "a.jpg"))
	assert.Contains(t, h.stderr.String(), "try --help for usage")
	assert.Zero(t, h.providerCalls)

	h = newHarness(t)
	assert.Equal(t, 1, h.run(t, "-t", "abc", "pose.onnx", "a.jpg"))
	assert.Zero(t, h.providerCalls)
}

func TestThresholdsAreClamped(t *testing.T) {
	cases := []struct {
		args       []string
		score, iou float32
		maxDet     int32
	}{
		{[]string{"-t", "-0.3", "-u", "1.7"}, 0, 1, 25},
		{[]string{"--threshold", "1.7", "--iou=-2", "-m", "0"}, 1, 0, 1},
		{[]string{"-t", "0.25", "-u", "0.4", "--max_detection", "-3"}, 0.25, 0.4, 1},
		{[]string{"-m", "7"}, 0.5, 0.5, 7},
		{[]string{"-m", "4294967297"}, 0.5, 0.5, config.MaxDetectionLimit},
	}
	for _, tc := range cases {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			h := newHarness(t)
			args := append(append([]string{}, tc.args...), "-e", "cpu", "pose.onnx", "a.jpg")
			require.Equal(t, 0, h.run(t, args...), h.stderr.String())

			assert.Equal(t, tc.score, h.cfg.ScoreThreshold)
			assert.Equal(t, tc.iou, h.cfg.IoUThreshold)
			faces := h.faces(t)
			assert.Equal(t, tc.score, faces.Floats[infer.ParamScoreThreshold])
			assert.Equal(t, tc.iou, faces.Floats[infer.ParamIoUThreshold])
			assert.Equal(t, tc.maxDet, faces.Ints[infer.ParamMaxDetection])
		})
	}
}

func TestTwoStageEndToEnd(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, 0, h.run(t, "-e", "cpu", "pose.onnx", "a.jpg"), h.stderr.String())

	out := h.stdout.String()
	assert.Contains(t, out, "Found face detection model")
	assert.Contains(t, out, "Width: 200 Height: 100\n")
	assert.Contains(t, out, "  [  0] ( 90%): 0.00 0.00 0.50 1.00 +1.0000 +2.0000 +3.0000\n")
	assert.Contains(t, out, "  [  1] ( 80%): 0.50 0.00 1.00 1.00 +1.0000 +2.0000 +3.0000\n")
	assert.Equal(t, 2, strings.Count(out, "  [  "))
	assert.Equal(t, "cpu", h.cfg.Engine)
	assert.Equal(t, "pose.onnx", h.cfg.Model)
	assert.Equal(t, 1, h.released)
	assert.Empty(t, h.stderr.String())
}

func TestNoDetect(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, 0, h.run(t, "-d", "-n", "signed", "pose.onnx", "a.jpg"))

	lines := strings.Split(strings.TrimSpace(h.stdout.String()), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "Load: "))
	assert.True(t, strings.HasSuffix(lines[0], "Yaw: 1.0000 Pitch: 2.0000 Roll: 3.0000"))
	assert.Equal(t, config.NormSigned, h.cfg.Norm)
	assert.False(t, h.cfg.FaceDetect)
	assert.Equal(t, "npu", h.cfg.Engine)
}

func TestFailingImageStopsRun(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.run(t, "-d", "pose.onnx", "b.jpg", "nope.jpg", "a.jpg"))
	assert.Equal(t, 1, strings.Count(h.stdout.String(), "Load: "))
	assert.True(t, strings.HasPrefix(h.stderr.String(), "failed to load nope.jpg: "))
	assert.Equal(t, 1, h.released)
}

func TestModelLoadFailure(t *testing.T) {
	h := newHarness(t)
	h.provider.ModelErr = &infer.Error{Code: infer.CodeModelLoad, Op: "pose.onnx", Err: errors.New("truncated")}
	assert.Equal(t, 1, h.run(t, "pose.onnx", "a.jpg"))
	assert.Equal(t, "failed to load model: pose.onnx: failed to load model: truncated\n", h.stderr.String())
}

func TestVerbose(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, 0, h.run(t, "--verbose", "-d", "pose.onnx", "b.jpg"))
	assert.Equal(t, slog.LevelDebug, h.level.Level())
}

func TestServe(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.run(t, "serve"))
	assert.Contains(t, h.stderr.String(), errMissingModel.Error())
	assert.False(t, h.served)

	h = newHarness(t)
	require.Equal(t, 0, h.run(t, "serve", "-e", "cpu", "-t", "2", "pose.onnx"))
	assert.True(t, h.served)
	assert.Equal(t, "pose.onnx", h.cfg.Model)
	assert.Equal(t, float32(1), h.cfg.ScoreThreshold)
	assert.Equal(t, 1, h.released)
}
