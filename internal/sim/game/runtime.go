package game

import (
	"context"
	"time"
)

type request struct {
	fn func()
}

// Run advances the game once per period and serves requests until ctx is
// done or Stop is called. Pending changes are flushed before it returns.
func (g *Game) Run(ctx context.Context) error {
	defer close(g.done)

	ticker := time.NewTicker(time.Duration(g.cfg.PeriodMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.flush()
			return ctx.Err()
		case <-g.stop:
			g.flush()
			return nil
		case req := <-g.reqs:
			req.fn()
		case <-ticker.C:
			g.advance()
		}
	}
}

func (g *Game) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// do runs fn on the game loop and waits for it. It is safe to call from
// other goroutines (e.g. HTTP handlers).
func (g *Game) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	req := request{fn: func() {
		fn()
		close(finished)
	}}

	select {
	case g.reqs <- req:
	case <-g.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func call[T any](ctx context.Context, g *Game, fn func() (T, error)) (T, error) {
	var (
		out T
		err error
	)
	if e := g.do(ctx, func() { out, err = fn() }); e != nil {
		var zero T
		return zero, e
	}
	return out, err
}
