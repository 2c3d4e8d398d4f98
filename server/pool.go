package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/krau/headpose/config"
	"github.com/krau/headpose/pipeline"
)

// Pool hands each request exclusive use of one driver, and with it one
// pose session and one face session.
type Pool struct {
	drivers chan *pipeline.Driver
	all     []*pipeline.Driver
}

func NewPool(cfg config.Config, provider pipeline.Provider) (*Pool, error) {
	cfg = cfg.Clamped()
	p := &Pool{drivers: make(chan *pipeline.Driver, cfg.Workers)}
	for i := 0; i < cfg.Workers; i++ {
		d, err := pipeline.New(cfg, provider)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to create worker %d: %w", i, err)
		}
		p.all = append(p.all, d)
		p.drivers <- d
	}
	return p, nil
}

// TwoStage reports whether the pooled drivers run face detection.
func (p *Pool) TwoStage() bool {
	return len(p.all) > 0 && p.all[0].TwoStage()
}

// Estimate borrows a driver for the duration of one estimate.
func (p *Pool) Estimate(ctx context.Context, src pipeline.Source) (*pipeline.ImageResult, error) {
	var d *pipeline.Driver
	select {
	case d = <-p.drivers:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.drivers <- d }()
	return d.Estimate(src)
}

// Close releases every driver. It must not race with Estimate.
func (p *Pool) Close() error {
	var errs []error
	for _, d := range p.all {
		errs = append(errs, d.Close())
	}
	p.all = nil
	return errors.Join(errs...)
}
