package infer

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/krau/headpose/config"
)

// Provider creates sessions. The zero value is not usable; use NewProvider.
type Provider struct {
	searchPath  []string
	faceModels  []string
	cascadeName string
	threads     int
}

func NewProvider(cfg config.Config) *Provider {
	return &Provider{
		searchPath:  cfg.SearchPath(),
		faceModels:  cfg.FaceModels,
		cascadeName: cfg.CascadeName,
		threads:     cfg.Threads,
	}
}

// NewSession loads the head pose model at path on engine.
func (p *Provider) NewSession(engine, path string) (Session, error) {
	e, err := ParseEngine(engine)
	if err != nil {
		return nil, err
	}
	s, err := newModelSession(e, path, HeadPose, p.threads)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Probe looks for a model of the given kind on the search path. ONNX face
// models are tried before pigo cascades. It reports false when nothing
// usable was found.
func (p *Provider) Probe(engine string, kind ModelKind) (Session, bool) {
	if kind != FaceDetection {
		return nil, false
	}
	e, err := ParseEngine(engine)
	if err != nil {
		slog.Warn("Probe skipped", slog.String("engine", engine), slog.String("error", err.Error()))
		return nil, false
	}

	for _, dir := range p.searchPath {
		for _, name := range p.faceModels {
			path := filepath.Join(dir, name)
			if !exists(path) {
				continue
			}
			s, err := newModelSession(e, path, FaceDetection, p.threads)
			if err != nil {
				slog.Warn("Skipping face model", slog.String("path", path), slog.String("error", err.Error()))
				continue
			}
			slog.Debug("Using face model", slog.String("path", path))
			return s, true
		}
	}

	if p.cascadeName == "" {
		return nil, false
	}
	for _, dir := range p.searchPath {
		path := filepath.Join(dir, p.cascadeName)
		if !exists(path) {
			continue
		}
		s, err := newCascadeSession(path)
		if err != nil {
			slog.Warn("Skipping face cascade", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		slog.Debug("Using face cascade", slog.String("path", path))
		return s, true
	}
	return nil, false
}

func (p *Provider) ImageResolution(path string) (int, int, error) {
	return ImageResolution(path)
}

func exists(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Cannot stat model", slog.String("path", path), slog.String("error", err.Error()))
		}
		return false
	}
	return fi.Mode().IsRegular()
}
