package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseName(t *testing.T) {
	testCases := []struct {
		raw      string
		expected ParsedName
		wantErr  bool
	}{
		{
			raw:      "21H - AGZ 1963 (ADS 4865)",
			expected: ParsedName{FleetNo: "21H", Registration: "AGZ 1963", TrailerReg: "ADS 4865"},
		},
		{
			raw:      "29H - AGJ 3466",
			expected: ParsedName{FleetNo: "29H", Registration: "AGJ 3466"},
		},
		{
			raw:      "V4 - ABB 1578 (ABS 0284)",
			expected: ParsedName{FleetNo: "V4", Registration: "ABB 1578", TrailerReg: "ABS 0284"},
		},
		{
			// Registration only, no fleet prefix.
			raw:      "AGZ 1963",
			expected: ParsedName{Registration: "AGZ 1963"},
		},
		{
			// Sloppy whitespace from the upstream editor.
			raw:      "  6H -  ACO 8468  ( ABT 0665 ) ",
			expected: ParsedName{FleetNo: "6H", Registration: "ACO 8468", TrailerReg: "ABT 0665"},
		},
		{
			raw:     "",
			wantErr: true,
		},
		{
			raw:     "   ",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseName(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
