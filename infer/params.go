package infer

import (
	"errors"
	"fmt"

	"github.com/krau/headpose/config"
)

type params struct {
	norm           config.Norm
	maxDetection   int
	scoreThreshold float32
	iouThreshold   float32
}

func defaultParams() params {
	return params{
		norm:           config.NormRaw,
		maxDetection:   25,
		scoreThreshold: 0.5,
		iouThreshold:   0.5,
	}
}

func (p *params) setInt(name string, values []int32) error {
	if len(values) != 1 {
		return newError(CodeInvalidParameter, name, fmt.Errorf("expected 1 value, got %d", len(values)))
	}
	v := values[0]
	switch name {
	case ParamNormalization:
		n := config.Norm(v)
		if !n.Valid() {
			return newError(CodeInvalidParameter, name, fmt.Errorf("unknown normalization %d", v))
		}
		p.norm = n
	case ParamMaxDetection:
		if v < 1 {
			return newError(CodeInvalidParameter, name, errors.New("must be at least 1"))
		}
		p.maxDetection = int(v)
	default:
		return newError(CodeInvalidParameter, name, errors.New("not an integer parameter"))
	}
	return nil
}

func (p *params) setFloat(name string, values []float32) error {
	if len(values) != 1 {
		return newError(CodeInvalidParameter, name, fmt.Errorf("expected 1 value, got %d", len(values)))
	}
	v := values[0]
	if !(v >= 0 && v <= 1) {
		return newError(CodeInvalidParameter, name, fmt.Errorf("%v out of range [0,1]", v))
	}
	switch name {
	case ParamScoreThreshold:
		p.scoreThreshold = v
	case ParamIoUThreshold:
		p.iouThreshold = v
	default:
		return newError(CodeInvalidParameter, name, errors.New("not a float parameter"))
	}
	return nil
}
