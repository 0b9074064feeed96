package mode

import (
	"context"
	"log/slog"
	"time"
)

// Mode is the build environment of the application.
type Mode int

const (
	Development Mode = iota
	Production
)

func (m Mode) String() string {
	if m == Production {
		return "production"
	}
	return "development"
}

// Current returns the mode compiled into this binary. Release builds carry the
// "production" build tag.
func Current() Mode { return current }

// DefaultAutoStartDelay is the pause between the window becoming ready and the
// backend being launched.
const DefaultAutoStartDelay = 500 * time.Millisecond

// Starter launches the backend.
type Starter interface {
	Start(ctx context.Context) (string, error)
}

// AutoStartOptions configures AutoStart.
type AutoStartOptions struct {
	// Delay after Ready fires. Zero uses DefaultAutoStartDelay; negative means none.
	Delay time.Duration
	// Ready, when non-nil, is waited on before the delay starts.
	Ready  <-chan struct{}
	Logger *slog.Logger
}

// AutoStart launches the backend once in the background when m is Production.
// Errors are logged and swallowed. The returned channel is closed when the
// attempt has finished, or immediately when nothing is scheduled.
func AutoStart(ctx context.Context, m Mode, s Starter, opts AutoStartOptions) <-chan struct{} {
	done := make(chan struct{})
	if m != Production || s == nil {
		close(done)
		return done
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	delay := opts.Delay
	if delay == 0 {
		delay = DefaultAutoStartDelay
	}
	go func() {
		defer close(done)
		if opts.Ready != nil {
			select {
			case <-opts.Ready:
			case <-ctx.Done():
				return
			}
		}
		if delay > 0 {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return
			}
		}
		msg, err := s.Start(ctx)
		if err != nil {
			log.Error("failed to start backend", "err", err)
			return
		}
		log.Info(msg)
	}()
	return done
}
