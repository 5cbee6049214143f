package throughput

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blethroughput/internal/device"
)

// DefaultPreBootPoll is how long the loop yields after dropping an event that
// arrived before the stack booted.
const DefaultPreBootPoll = 50 * time.Millisecond

// ErrEventsClosed is returned when the stack stops producing events.
var ErrEventsClosed = errors.New("event stream closed")

// Decision is the user's answer after a one-shot run.
type Decision uint8

const (
	DecisionRun Decision = iota
	DecisionExit
)

func (d Decision) String() string {
	if d == DecisionExit {
		return "exit"
	}
	return "run"
}

// PromptFunc asks the user whether to run again.
type PromptFunc func(ctx context.Context) (Decision, error)

// Loop feeds stack events to a Controller and handles the run/exit prompt.
type Loop struct {
	Controller *Controller
	Stack      device.Stack
	Events     <-chan device.Event
	Prompt     PromptFunc
	// Interrupts delivers user interrupts (Ctrl+C). May be nil.
	Interrupts  <-chan struct{}
	PreBootPoll time.Duration
	Logger      *logrus.Logger
}

// Run resets the stack and processes events until the user exits, the context
// is cancelled or the event stream ends.
func (l *Loop) Run(ctx context.Context) error {
	if l.Logger == nil {
		l.Logger = logrus.New()
	}
	if l.PreBootPoll == 0 {
		l.PreBootPoll = DefaultPreBootPoll
	}

	l.Logger.Info("Resetting stack")
	if err := l.Stack.ResetDevice(); err != nil {
		return fmt.Errorf("failed to reset device: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-l.Interrupts:
			if !l.Controller.Config().Mode.OneShot() {
				l.Logger.Info("Interrupted in free mode, exiting")
				return l.shutdown()
			}
			done, err := l.ask(ctx)
			if done || err != nil {
				return err
			}

		case ev, ok := <-l.Events:
			if !ok {
				return ErrEventsClosed
			}
			if !l.Controller.Booted() {
				if _, boot := ev.(device.BootEvent); !boot {
					l.Controller.HandleEvent(ev)
					if err := sleepContext(ctx, l.PreBootPoll); err != nil {
						return err
					}
					continue
				}
			}
			if !l.Controller.HandleEvent(ev) {
				continue
			}
			done, err := l.ask(ctx)
			if done || err != nil {
				return err
			}
		}
	}
}

// ask prompts the user; done is true when the loop should stop.
func (l *Loop) ask(ctx context.Context) (done bool, err error) {
	if l.Prompt == nil {
		return true, l.shutdown()
	}
	decision, err := l.Prompt(ctx)
	if err != nil {
		return true, err
	}
	l.Logger.WithField("decision", decision).Debug("User decision")

	switch decision {
	case DecisionExit:
		return true, l.shutdown()
	default:
		if err := l.Stack.EndDiscovery(); err != nil {
			l.Logger.WithError(err).Debug("End discovery before reset failed")
		}
		if err := l.Stack.ResetDevice(); err != nil {
			return true, fmt.Errorf("failed to reset device: %w", err)
		}
		return false, nil
	}
}

func (l *Loop) shutdown() error {
	if err := l.Stack.ResetDevice(); err != nil {
		return fmt.Errorf("failed to reset device: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
