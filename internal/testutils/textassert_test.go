package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockTestingT struct {
	errors []string
}

func (m *mockTestingT) Errorf(format string, args ...interface{}) {
	m.errors = append(m.errors, fmt.Sprintf(format, args...))
}

func (m *mockTestingT) Helper() {}

func TestTextAsserter_DefaultOptions(t *testing.T) {
	opts := NewTextAsserter(t).GetOptions()

	assert.True(t, opts.StripANSI)
	assert.True(t, opts.StripBackspaces)
	assert.True(t, opts.IgnoreTrailingWhitespace)
	assert.False(t, opts.IgnoreEmptyLines)
	assert.False(t, opts.TrimSpace)
	assert.False(t, opts.EnableColors)
}

func TestTextAsserter_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		opts     []TextOption
		input    string
		expected string
	}{
		{
			name:     "strips color codes",
			input:    "\x1b[36;1mRESULTS:\x1b[0m\n",
			expected: "RESULTS:\n",
		},
		{
			name:     "strips spinner frames",
			input:    "(|)\b\b\b(/)\b\b\b   \b\b\bFound device\n",
			expected: "Found device\n",
		},
		{
			name:     "keeps backspaces when disabled",
			opts:     []TextOption{WithStripBackspaces(false)},
			input:    "(|)\b\b\b",
			expected: "(|)\b\b\b",
		},
		{
			name:     "trailing whitespace",
			input:    "System booted. Starting scanning... \n",
			expected: "System booted. Starting scanning...\n",
		},
		{
			name:     "empty lines",
			opts:     []TextOption{WithIgnoreEmptyLines(true)},
			input:    "a\n\n\nb",
			expected: "a\nb",
		},
		{
			name:     "trim space",
			opts:     []TextOption{WithTrimSpace(true)},
			input:    "\n\n  a  \n\n",
			expected: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := NewTextAsserter(t).WithOptions(tt.opts...)
			assert.Equal(t, tt.expected, ta.Normalize(tt.input))
		})
	}
}

func TestTextAsserter_AssertFailureReportsDiff(t *testing.T) {
	mockT := &mockTestingT{}
	ta := NewTextAsserter(mockT)

	ok := ta.Assert("MTU exchanged: 247\n", "MTU exchanged: 250\n")

	assert.False(t, ok)
	if assert.Len(t, mockT.errors, 1) {
		assert.Contains(t, mockT.errors[0], "-MTU exchanged: 250")
		assert.Contains(t, mockT.errors[0], "+MTU exchanged: 247")
	}
}

func TestTextAsserter_AssertSuccess(t *testing.T) {
	mockT := &mockTestingT{}
	ok := NewTextAsserter(mockT).Assert("\x1b[32mConnection opened!\x1b[0m\n", "Connection opened!\n")

	assert.True(t, ok)
	assert.Empty(t, mockT.errors)
}

func TestTextAsserter_ColoredDiff(t *testing.T) {
	ta := NewTextAsserter(t).WithOptions(WithEnableColors(true))

	diff := ta.Diff("a b\n", "a c\n")

	assert.Contains(t, diff, "\x1b[")
	assert.Contains(t, diff, "a·b")
}
