// Package infer is the inference provider behind the head pose pipeline.
//
// A Provider hands out Sessions, each bound to one model and one compute
// engine. Sessions are configured with named parameters, fed one image at
// a time and queried for boxes (face detection) or an orientation (head
// pose) after Run. Sessions are not safe for concurrent use.
package infer

import (
	"fmt"
	"image"
)

// Parameter names understood by SetInt and SetFloat.
const (
	ParamNormalization  = "normalization"
	ParamMaxDetection   = "max_detection"
	ParamScoreThreshold = "score_threshold"
	ParamIoUThreshold   = "iou_threshold"
)

type ModelKind int

const (
	HeadPose ModelKind = iota
	FaceDetection
)

func (k ModelKind) String() string {
	switch k {
	case HeadPose:
		return "head pose"
	case FaceDetection:
		return "face detection"
	default:
		return fmt.Sprintf("ModelKind(%d)", int(k))
	}
}

// Box is a detection in normalized image coordinates.
type Box struct {
	XMin, YMin, XMax, YMax float32
	Score                  float32
}

// ROI denormalizes b against a width x height image. Coordinates are
// truncated toward zero.
func (b Box) ROI(width, height int) image.Rectangle {
	return image.Rect(
		int(b.XMin*float32(width)),
		int(b.YMin*float32(height)),
		int(b.XMax*float32(width)),
		int(b.YMax*float32(height)),
	)
}

// Euler is a head orientation in degrees.
type Euler struct {
	Yaw, Pitch, Roll float32
}

type Session interface {
	Kind() ModelKind
	SetInt(name string, values ...int32) error
	SetFloat(name string, values ...float32) error
	// LoadImageFile replaces the session input with the image at path,
	// cropped to roi when roi is not nil.
	LoadImageFile(path string, roi *image.Rectangle) error
	LoadImage(img image.Image, roi *image.Rectangle) error
	Run() error
	// Boxes copies up to len(dst) detections from the last run.
	Boxes(dst []Box) (int, error)
	// Euler copies up to len(dst) orientations from the last run.
	Euler(dst []Euler) (int, error)
	Release() error
}
