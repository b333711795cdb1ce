package utils

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
    cases := []struct {
        name string
        in   string
        want string
    }{
        {"already normalized", "+15550001234", "+15550001234"},
        {"spaces and dashes", "+1 555-000-1234", "+15550001234"},
        {"parentheses and dots", "(555) 000.1234", "5550001234"},
        {"double zero prefix", "0015550001234", "+15550001234"},
        {"double zero with spaces", "00 15 55 00 01 23 4", "+15550001234"},
        {"plus mid-string dropped", "555+0001234", "5550001234"},
        {"surrounding whitespace", "  +15550001234  ", "+15550001234"},
        {"no digits", "no number at all", ""},
        {"empty", "", ""},
        {"only plus", "+", ""},
        {"only double zero", "00", ""},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            assert.Equal(t, tc.want, NormalizePhone(tc.in))
        })
    }
}
