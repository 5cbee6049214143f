package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/srg/blethroughput/internal/testutils"
	"github.com/srg/blethroughput/internal/throughput"
)

func newTestPrompter(t *testing.T, ctx context.Context, in io.Reader, interrupts <-chan struct{}) (*prompter, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return newPrompter(ctx, in, &out, interrupts, testutils.NewTestHelper(t).Logger), &out
}

func TestPrompter_Ask(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  throughput.Decision
		out   string
	}{
		{"run", "run\n", throughput.DecisionRun, promptText},
		{"exit", "exit\n", throughput.DecisionExit, promptText},
		{"case and spaces", "  RUN \n", throughput.DecisionRun, promptText},
		{"invalid then run", "again\nrun\n", throughput.DecisionRun, promptText + "Invalid command: again" + promptText},
		{"end of input exits", "", throughput.DecisionExit, promptText + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			p, out := newTestPrompter(t, ctx, strings.NewReader(tt.input), nil)

			got, err := p.Ask(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.out, out.String())
		})
	}
}

func TestPrompter_AnswersAcrossRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, _ := newTestPrompter(t, ctx, strings.NewReader("run\nexit\n"), nil)

	first, err := p.Ask(ctx)
	require.NoError(t, err)
	second, err := p.Ask(ctx)
	require.NoError(t, err)

	assert.Equal(t, throughput.DecisionRun, first)
	assert.Equal(t, throughput.DecisionExit, second)
}

func TestPrompter_InterruptExits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, w := io.Pipe()
	defer w.Close()
	interrupts := make(chan struct{}, 1)
	interrupts <- struct{}{}

	p, _ := newTestPrompter(t, ctx, r, interrupts)

	got, err := p.Ask(ctx)
	require.NoError(t, err)
	assert.Equal(t, throughput.DecisionExit, got)
}

func TestPrompter_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r, w := io.Pipe()
	defer w.Close()

	p, _ := newTestPrompter(t, ctx, r, nil)
	cancel()

	_, err := p.Ask(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
