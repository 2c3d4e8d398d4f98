package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLibPathExplicit(t *testing.T) {
	assert.Equal(t, "/opt/lib/libonnxruntime.so", LibPath("/opt/lib/libonnxruntime.so"))
}

func TestVersionBeforeInit(t *testing.T) {
	assert.Equal(t, "unknown", Version())
}

func TestDestroyWithoutInit(t *testing.T) {
	Destroy()
	assert.Zero(t, refs)
}
