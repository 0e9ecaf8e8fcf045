package checkout

import (
	"context"
	"log/slog"
	"time"
)

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// compensation collects undo steps and runs them newest first, on a
// context detached from the request.
type compensation struct {
	steps []undoStep
}

func (c *compensation) add(name string, fn func(ctx context.Context) error) {
	c.steps = append(c.steps, undoStep{name: name, fn: fn})
}

func (c *compensation) run(ctx context.Context, log *slog.Logger) {
	if len(c.steps) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	for i := len(c.steps) - 1; i >= 0; i-- {
		s := c.steps[i]
		if err := s.fn(ctx); err != nil {
			log.ErrorContext(ctx, "checkout compensation failed", "step", s.name, "err", err)
		}
	}
	c.steps = nil
}
