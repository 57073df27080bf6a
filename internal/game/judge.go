package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Verdict is the Judge's answer for one photo.
type Verdict struct {
	Valid      bool    `json:"valid"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Judge decides whether an image satisfies a mission.
type Judge interface {
	Judge(ctx context.Context, image, mission string) (Verdict, error)
}

const fallbackAcceptRate = 0.7

func fallbackVerdict() Verdict {
	v := Verdict{
		Valid:      rand.Float64() < fallbackAcceptRate,
		Confidence: rand.Float64(),
	}
	if v.Valid {
		v.Reason = "Looks like a match!"
	} else {
		v.Reason = "Couldn't spot the mission in this photo."
	}
	return v
}

// bounded runs fn with a deadline and stops waiting when it passes, even if fn
// ignores its context. The result of a late fn is discarded and a panic in fn
// comes back as an error.
func bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
