package cliutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datawire/matrixci/pkg/cliutil"
)

func TestWrap(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		Width    int
		Input    string
		Expected string
	}{
		"zero-width-is-verbatim": {
			Width:    0,
			Input:    "anything at all, no matter how very long it happens to be",
			Expected: "anything at all, no matter how very long it happens to be",
		},
		"short-stays-put": {
			Width:    80,
			Input:    "short enough",
			Expected: "short enough",
		},
		"breaks-before-the-budget": {
			Width:    20, // budget 15
			Input:    "alpha beta gamma delta",
			Expected: "alpha beta\ngamma delta",
		},
		"break-eats-the-gap": {
			Width:    12, // budget 7
			Input:    "aaaa bbbb cccc",
			Expected: "aaaa\nbbbb\ncccc",
		},
		"sentence-spacing-survives": {
			Width:    80,
			Input:    "First sentence.  Second sentence.",
			Expected: "First sentence.  Second sentence.",
		},
		"keeps-paragraphs": {
			Width:    20,
			Input:    "a b c d e f\n\nnext para",
			Expected: "a b c d e f\n\nnext para",
		},
		"degenerate-width-clamps": {
			Width:    10, // raw budget would be 5; clamped to 20
			Input:    "supercalifragilistic word",
			Expected: "supercalifragilistic\nword",
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.Expected, cliutil.Wrap(tc.Width, tc.Input))
		})
	}
}

func TestWrapIndent(t *testing.T) {
	t.Parallel()
	// budget is 16-5-4=7; continuation lines get the 4-column indent
	assert.Equal(t, "mono\n    duo tri", cliutil.WrapIndent(4, 16, "mono duo tri"))
	// later paragraphs get the indent too (the caller only writes the
	// first line's indent)
	assert.Equal(t, "first para\n  second para", cliutil.WrapIndent(2, 40, "first para\nsecond para"))
}
