package trigger

import (
	"context"
	"errors"
	"strings"
)

type anyTrigger struct {
	triggers []Trigger
}

// Any races triggers. The first to fire wins; the rest are canceled.
// A trigger that fails is dropped from the race; Wait returns an error
// only when every trigger has failed.
func Any(triggers ...Trigger) Trigger {
	return &anyTrigger{triggers: triggers}
}

func (a *anyTrigger) Name() string {
	names := make([]string, len(a.triggers))
	for i, t := range a.triggers {
		names[i] = t.Name()
	}
	return "any(" + strings.Join(names, ",") + ")"
}

type result struct {
	fired Fired
	err   error
}

func (a *anyTrigger) Wait(ctx context.Context) (Fired, error) {
	if len(a.triggers) == 0 {
		return Fired{}, ErrNoTriggers
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, len(a.triggers))
	for _, t := range a.triggers {
		go func(t Trigger) {
			f, err := t.Wait(ctx)
			results <- result{fired: f, err: err}
		}(t)
	}

	var errs []error
	for range a.triggers {
		r := <-results
		if r.err == nil {
			return r.fired, nil
		}
		if ctx.Err() != nil {
			return Fired{}, ctx.Err()
		}
		errs = append(errs, r.err)
	}
	return Fired{}, errors.Join(errs...)
}
