package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultFile    = "config.toml"
	ModelPathEnv   = "HEADPOSE_MODEL_PATH"
	LibonnxPathEnv = "HEADPOSE_LIBONNX"

	// MaxDetectionLimit bounds max_detection. The driver allocates a box
	// buffer of this size up front.
	MaxDetectionLimit = 4096
)

// Config is built once per process from the config file, the environment
// and the command line. It is passed by value and never mutated afterwards.
type Config struct {
	Engine         string  `toml:"engine" mapstructure:"engine"`
	Model          string  `toml:"-" mapstructure:"-"`
	Norm           Norm    `toml:"norm" mapstructure:"norm"`
	ScoreThreshold float32 `toml:"threshold" mapstructure:"threshold"`
	IoUThreshold   float32 `toml:"iou" mapstructure:"iou"`
	MaxDetection   int     `toml:"max_detection" mapstructure:"max_detection"`
	FaceDetect     bool    `toml:"face_detect" mapstructure:"face_detect"`

	Libonnx     string   `toml:"libonnx" mapstructure:"libonnx"`
	ModelPath   string   `toml:"model_path" mapstructure:"model_path"`
	FaceModels  []string `toml:"face_models" mapstructure:"face_models"`
	CascadeName string   `toml:"cascade_name" mapstructure:"cascade_name"`
	Threads     int      `toml:"threads" mapstructure:"threads"`
	LogFile     string   `toml:"log_file" mapstructure:"log_file"`

	Token     string  `toml:"token" mapstructure:"token"`
	Host      string  `toml:"host" mapstructure:"host"`
	Port      string  `toml:"port" mapstructure:"port"`
	Workers   int     `toml:"workers" mapstructure:"workers"`
	RateLimit float64 `toml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `toml:"rate_burst" mapstructure:"rate_burst"`
}

// Default returns the values used when neither the config file nor the
// command line say otherwise.
func Default() Config {
	return Config{
		Engine:         "npu",
		Norm:           NormRaw,
		ScoreThreshold: 0.5,
		IoUThreshold:   0.5,
		MaxDetection:   25,
		FaceDetect:     true,

		ModelPath:   "models",
		FaceModels:  []string{"face_detection.onnx", "version-RFB-320.onnx", "version-RFB-640.onnx"},
		CascadeName: "facefinder",

		Host:      "0.0.0.0",
		Port:      "8000",
		Workers:   1,
		RateLimit: 5,
		RateBurst: 10,
	}
}

// Load reads path on top of Default. A missing file is not an error;
// environment overrides are applied afterwards.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	if v := os.Getenv(ModelPathEnv); v != "" {
		cfg.ModelPath = v
	}
	if v := os.Getenv(LibonnxPathEnv); v != "" {
		cfg.Libonnx = v
	}
	return cfg.Clamped(), nil
}

// Clamped returns a copy with every bounded field pulled into range.
func (c Config) Clamped() Config {
	c.ScoreThreshold = clamp(c.ScoreThreshold, 0, 1)
	c.IoUThreshold = clamp(c.IoUThreshold, 0, 1)
	c.MaxDetection = min(max(c.MaxDetection, 1), MaxDetectionLimit)
	c.Workers = max(c.Workers, 1)
	c.Threads = max(c.Threads, 0)
	if c.RateLimit <= 0 {
		c.RateLimit = Default().RateLimit
	}
	c.RateBurst = max(c.RateBurst, 1)
	return c
}

// SearchPath splits ModelPath into the directories probed for face models.
func (c Config) SearchPath() []string {
	var dirs []string
	for _, d := range filepath.SplitList(c.ModelPath) {
		d = strings.TrimSpace(d)
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func clamp(v, lo, hi float32) float32 {
	if v != v {
		return lo
	}
	return min(max(v, lo), hi)
}
