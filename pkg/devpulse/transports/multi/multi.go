// Package multi provides a poster that fans a payload out to several posters.
// Every poster receives every payload; errors are aggregated.
package multi

import (
	"context"
	"errors"
)

// Target matches devpulse.Poster.
type Target interface {
	Post(ctx context.Context, endpoint string, body []byte) error
}

// Poster posts to each of its targets in order.
type Poster struct {
	posters []Target
}

// New creates a poster that writes to every non-nil target.
func New(posters ...Target) *Poster {
	m := &Poster{}
	for _, p := range posters {
		if p != nil {
			m.posters = append(m.posters, p)
		}
	}
	return m
}

// Post calls every poster even if some fail. The returned error joins the
// individual failures.
func (m *Poster) Post(ctx context.Context, endpoint string, body []byte) error {
	var errs []error
	for _, p := range m.posters {
		if err := p.Post(ctx, endpoint, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
