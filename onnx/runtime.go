package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initMu sync.Mutex
	refs   int
)

// LibPath picks the ONNX Runtime shared library: an explicit path wins,
// otherwise the first well-known system location that exists.
func LibPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range systemPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func systemPaths() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
			"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
			"/usr/lib/aarch64-linux-gnu/libonnxruntime.so",
			"/opt/onnxruntime/lib/libonnxruntime.so",
		}
	case "darwin":
		return []string{
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
		}
	case "windows":
		return []string{"onnxruntime.dll"}
	default:
		return nil
	}
}

// Init loads the shared library and initializes the runtime environment.
// Calls are reference counted; every successful Init must be paired with
// Destroy.
func Init(libonnx string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if refs > 0 {
		refs++
		return nil
	}
	path := LibPath(libonnx)
	if path == "" {
		return errors.New("ONNX Runtime library path could not be determined for this OS")
	}
	slog.Debug("Using ONNX Runtime library", slog.String("path", path))
	ort.SetSharedLibraryPath(path)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
		}
	}
	refs = 1
	return nil
}

func Destroy() {
	initMu.Lock()
	defer initMu.Unlock()

	if refs == 0 {
		return
	}
	refs--
	if refs > 0 {
		return
	}
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Error("Failed to destroy ONNX Runtime environment", slog.String("error", err.Error()))
	}
}

// Version reports the runtime version, or "unknown" before Init.
func Version() string {
	if !ort.IsInitialized() {
		return "unknown"
	}
	return ort.GetVersion()
}
