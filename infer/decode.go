package infer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// binWidth is the angular width in degrees of one classification bin in
// binned head pose models.
const binWidth = 3

// output is a copy of one float32 model output taken right after Run.
type output struct {
	name  string
	shape []int64
	data  []float32
}

func (o output) lastDim() int64 {
	if len(o.shape) == 0 {
		return 0
	}
	return o.shape[len(o.shape)-1]
}

// decodeEuler accepts either one output carrying yaw, pitch and roll, three
// single-value outputs, or three binned outputs decoded as the softmax
// expectation over binWidth-degree bins centred on zero.
func decodeEuler(outs []output) (Euler, error) {
	switch {
	case len(outs) == 1 && len(outs[0].data) >= 3:
		d := outs[0].data
		return Euler{Yaw: d[0], Pitch: d[1], Roll: d[2]}, nil
	case len(outs) >= 3:
		var angles [3]float32
		for i := range angles {
			d := outs[i].data
			switch {
			case len(d) == 1:
				angles[i] = d[0]
			case len(d) > 1:
				angles[i] = binnedAngle(d)
			default:
				return Euler{}, fmt.Errorf("output %q is empty", outs[i].name)
			}
		}
		return Euler{Yaw: angles[0], Pitch: angles[1], Roll: angles[2]}, nil
	default:
		return Euler{}, fmt.Errorf("cannot decode orientation from %d outputs", len(outs))
	}
}

func binnedAngle(logits []float32) float32 {
	xs := make([]float64, len(logits))
	for i, v := range logits {
		xs[i] = float64(v)
	}
	lse := floats.LogSumExp(xs)
	var expect float64
	for i, v := range xs {
		expect += math.Exp(v-lse) * float64(i)
	}
	bins := float64(len(xs))
	return float32(expect*binWidth - bins*binWidth/2)
}

// decodeFaces reads UltraFace-style outputs: scores [1,N,2] holding
// background/face confidences and boxes [1,N,4] holding normalized corners.
func decodeFaces(outs []output, p params) ([]Box, error) {
	var scores, boxes *output
	for i := range outs {
		switch outs[i].lastDim() {
		case 2:
			scores = &outs[i]
		case 4:
			boxes = &outs[i]
		}
	}
	if scores == nil || boxes == nil {
		return nil, errors.New("model has no scores/boxes outputs")
	}
	n := len(scores.data) / 2
	if len(boxes.data)/4 != n {
		return nil, fmt.Errorf("%d scores for %d boxes", n, len(boxes.data)/4)
	}

	var cands []Box
	for i := 0; i < n; i++ {
		s := scores.data[i*2+1]
		if s < p.scoreThreshold {
			continue
		}
		b := boxes.data[i*4 : i*4+4]
		cands = append(cands, Box{
			XMin:  clamp01(b[0]),
			YMin:  clamp01(b[1]),
			XMax:  clamp01(b[2]),
			YMax:  clamp01(b[3]),
			Score: clamp01(s),
		})
	}
	return nms(cands, p.iouThreshold, p.maxDetection), nil
}

// nms keeps the highest scoring boxes, dropping any box that overlaps an
// already kept one by more than iouThreshold. At most limit boxes are
// returned, sorted by descending score.
func nms(boxes []Box, iouThreshold float32, limit int) []Box {
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Score > boxes[j].Score
	})
	kept := make([]Box, 0, min(len(boxes), limit))
	for _, b := range boxes {
		if len(kept) == limit {
			break
		}
		overlaps := false
		for _, k := range kept {
			if iou(b, k) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, b)
		}
	}
	return kept
}

func iou(a, b Box) float32 {
	ix := min(a.XMax, b.XMax) - max(a.XMin, b.XMin)
	iy := min(a.YMax, b.YMax) - max(a.YMin, b.YMin)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := area(a) + area(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func area(b Box) float32 {
	return max(b.XMax-b.XMin, 0) * max(b.YMax-b.YMin, 0)
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}
