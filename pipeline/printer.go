package pipeline

import (
	"fmt"
	"io"
	"time"
)

const (
	foundFacesMsg   = "Found face detection model, running two step pipeline.\n"
	missingFacesMsg = "Unable to locate face detection model, please ensure HEADPOSE_MODEL_PATH has been set.\n"
	boxHeader       = "  [box] (scr%): xmin ymin xmax ymax   yaw    pitch   roll\n"
)

// Printer renders results in the command line format.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Mode announces which pipeline runs. Nothing is printed when face
// detection was not requested.
func (p *Printer) Mode(requested, twoStage bool) {
	switch {
	case twoStage:
		fmt.Fprint(p.w, foundFacesMsg)
	case requested:
		fmt.Fprint(p.w, missingFacesMsg)
	}
}

func (p *Printer) Image(res *ImageResult) {
	if !res.TwoStage {
		for _, f := range res.Faces {
			fmt.Fprintf(p.w, "Load: %.4f Infer: %.4f Decode: %.4f Yaw: %.4f Pitch: %.4f Roll: %.4f\n",
				ms(f.Timing.Load),
				ms(f.Timing.Infer),
				ms(f.Timing.Decode),
				f.Orientation.Yaw,
				f.Orientation.Pitch,
				f.Orientation.Roll)
		}
		return
	}

	fmt.Fprint(p.w, boxHeader)
	fmt.Fprintf(p.w, "Width: %d Height: %d\n", res.Width, res.Height)
	for _, f := range res.Faces {
		fmt.Fprintf(p.w, "  [%3d] (%3d%%): %3.2f %3.2f %3.2f %3.2f %+3.4f %+3.4f %+3.4f\n",
			f.Index,
			int(f.Box.Score*100),
			f.Box.XMin,
			f.Box.YMin,
			f.Box.XMax,
			f.Box.YMax,
			f.Orientation.Yaw,
			f.Orientation.Pitch,
			f.Orientation.Roll)
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
