package server

import "github.com/krau/headpose/pipeline"

type BoxResult struct {
	XMin float32 `json:"xmin"`
	YMin float32 `json:"ymin"`
	XMax float32 `json:"xmax"`
	YMax float32 `json:"ymax"`
}

type FaceResult struct {
	Index    int        `json:"index"`
	Score    float32    `json:"score,omitempty"`
	Box      *BoxResult `json:"box,omitempty"`
	Yaw      float32    `json:"yaw"`
	Pitch    float32    `json:"pitch"`
	Roll     float32    `json:"roll"`
	LoadMs   float64    `json:"load_ms"`
	InferMs  float64    `json:"infer_ms"`
	DecodeMs float64    `json:"decode_ms"`
}

type PredictionResult struct {
	Width    int          `json:"width"`
	Height   int          `json:"height"`
	TwoStage bool         `json:"two_stage"`
	Faces    []FaceResult `json:"faces"`
}

func newPredictionResult(res *pipeline.ImageResult) *PredictionResult {
	out := &PredictionResult{
		Width:    res.Width,
		Height:   res.Height,
		TwoStage: res.TwoStage,
		Faces:    make([]FaceResult, 0, len(res.Faces)),
	}
	for _, f := range res.Faces {
		fr := FaceResult{
			Index:    f.Index,
			Yaw:      f.Orientation.Yaw,
			Pitch:    f.Orientation.Pitch,
			Roll:     f.Orientation.Roll,
			LoadMs:   float64(f.Timing.Load.Microseconds()) / 1000,
			InferMs:  float64(f.Timing.Infer.Microseconds()) / 1000,
			DecodeMs: float64(f.Timing.Decode.Microseconds()) / 1000,
		}
		if res.TwoStage {
			fr.Score = f.Box.Score
			fr.Box = &BoxResult{XMin: f.Box.XMin, YMin: f.Box.YMin, XMax: f.Box.XMax, YMax: f.Box.YMax}
		}
		out.Faces = append(out.Faces, fr)
	}
	return out
}
