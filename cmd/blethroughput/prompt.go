package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/blethroughput/internal/groutine"
	"github.com/srg/blethroughput/internal/throughput"
)

const promptText = "\n\nRun the test again? (run/exit)>"

// prompter asks the run/exit question after a fixed run. Input is read by a
// single background goroutine so a pending read never blocks cancellation.
type prompter struct {
	out        io.Writer
	lines      <-chan string
	interrupts <-chan struct{}
	logger     *logrus.Logger
}

func newPrompter(ctx context.Context, in io.Reader, out io.Writer, interrupts <-chan struct{}, logger *logrus.Logger) *prompter {
	lines := make(chan string)
	groutine.Go(ctx, "prompt-reader", func(ctx context.Context) {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.WithError(err).Debug("Prompt input failed")
		}
	})

	return &prompter{out: out, lines: lines, interrupts: interrupts, logger: logger}
}

// Ask implements throughput.PromptFunc. End of input and Ctrl+C both mean exit.
func (p *prompter) Ask(ctx context.Context) (throughput.Decision, error) {
	for {
		fmt.Fprint(p.out, promptText)

		select {
		case <-ctx.Done():
			return throughput.DecisionExit, ctx.Err()
		case <-p.interrupts:
			fmt.Fprintln(p.out)
			return throughput.DecisionExit, nil
		case line, ok := <-p.lines:
			if !ok {
				fmt.Fprintln(p.out)
				return throughput.DecisionExit, nil
			}
			switch strings.ToLower(line) {
			case "run":
				return throughput.DecisionRun, nil
			case "exit":
				return throughput.DecisionExit, nil
			}
			fmt.Fprintf(p.out, "Invalid command: %s", line)
		}
	}
}
