package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_SuggestName(t *testing.T) {
	testCases := []struct {
		name       string
		ident      string
		candidates []string
		expect     string
	}{
		{
			name:       "exact typo, one char off",
			ident:      "lenght",
			candidates: []string{"length", "width", "height"},
			expect:     "length",
		},
		{
			name:       "transposition",
			ident:      "vlaue",
			candidates: []string{"value", "other"},
			expect:     "value",
		},
		{
			name:       "no close match",
			ident:      "zzzzzzzzzz",
			candidates: []string{"value", "other"},
			expect:     "",
		},
		{
			name:       "no candidates",
			ident:      "anything",
			candidates: nil,
			expect:     "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			actual := SuggestName(tc.ident, tc.candidates)
			assert.Equal(tc.expect, actual)
		})
	}
}
