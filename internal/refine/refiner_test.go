package refine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]string{
		"panic: runtime error: index out of range [3] with length 2": "IndexOutOfRange",
		"panic: runtime error: invalid memory address or nil pointer dereference": "NilDereference",
		"panic: runtime error: integer divide by zero":                           "DivisionByZero",
		"undefined: foo":                                                         "CompileError",
		"assertion failed: expected 1.0 got 2.0":                                 "AssertionFailure",
		"something completely unrelated":                                        "UnknownError",
	}
	for stderr, want := range cases {
		got, _ := classifyError(stderr)
		assert.Equal(t, want, got, stderr)
	}
}

func TestTruncateMiddle(t *testing.T) {
	short := "short string"
	assert.Equal(t, short, truncateMiddle(short, 2000))

	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'a'
	}
	out := truncateMiddle(string(long), 2000)
	assert.Contains(t, out, "truncated")
	assert.Less(t, len(out), 3000)
}

func TestNewPatchAttemptTruncatesStderr(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	p := newPatchAttempt("a", "b", string(long))
	assert.Len(t, p.StderrExcerpt, stderrExcerptLen)
}
