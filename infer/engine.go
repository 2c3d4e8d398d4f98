package infer

import (
	"fmt"
	"runtime"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

type Engine string

const (
	EngineCPU Engine = "cpu"
	EngineNPU Engine = "npu"
	EngineGPU Engine = "gpu"
)

func ParseEngine(s string) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case EngineCPU, EngineNPU, EngineGPU:
		return e, nil
	default:
		return "", newError(CodeInvalidEngine, s, nil)
	}
}

// sessionOptions builds runtime options for engine. The returned options
// must be destroyed by the caller.
func sessionOptions(engine Engine, threads int) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if threads > 0 {
		if err := opts.SetIntraOpNumThreads(threads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	switch engine {
	case EngineGPU:
		err = appendCUDA(opts)
	case EngineNPU:
		err = appendNPU(opts)
	}
	if err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("failed to enable %s execution provider: %w", engine, err)
	}
	return opts, nil
}

func appendCUDA(opts *ort.SessionOptions) error {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cuda.Destroy()
	if err := cuda.Update(map[string]string{"device_id": "0"}); err != nil {
		return err
	}
	return opts.AppendExecutionProviderCUDA(cuda)
}

func appendNPU(opts *ort.SessionOptions) error {
	switch runtime.GOOS {
	case "darwin":
		return opts.AppendExecutionProviderCoreML(0)
	case "windows":
		return opts.AppendExecutionProviderDirectML(0)
	default:
		return opts.AppendExecutionProviderOpenVINO(map[string]string{"device_type": "NPU"})
	}
}
