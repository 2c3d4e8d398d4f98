package pipeline

import (
	"errors"
	"fmt"
	"io"

	"github.com/krau/headpose/config"
)

// Run processes images in order and prints each result to w. The first
// failure stops the run; sessions are released on every path.
func Run(cfg config.Config, provider Provider, images []string, w io.Writer) (err error) {
	if len(images) == 0 {
		return ErrNoImages
	}
	d, err := New(cfg, provider)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release sessions: %w", cerr))
		}
	}()

	p := NewPrinter(w)
	p.Mode(cfg.FaceDetect, d.TwoStage())
	for _, path := range images {
		res, err := d.Estimate(FromFile(path))
		if err != nil {
			return err
		}
		p.Image(res)
	}
	return nil
}
