package utils // phone normalization helpers shared by handlers and services

import "strings"

// NormalizePhone canonicalizes a phone number so that the same
// visitor always maps to the same row regardless of formatting.
// Spaces, dashes, dots and parentheses are stripped; a single
// leading "+" is preserved; a leading "00" international prefix is
// rewritten to "+".  The function does not validate country codes;
// it only guarantees a stable key.  An input with no digits
// normalizes to the empty string, which callers must reject.
func NormalizePhone(raw string) string {
    s := strings.TrimSpace(raw)
    if s == "" {
        return ""
    }
    var b strings.Builder
    plus := false
    for i, r := range s {
        switch {
        case r >= '0' && r <= '9':
            b.WriteRune(r)
        case r == '+' && i == 0:
            plus = true
        }
        // every other rune (spaces, dashes, dots, parens) is dropped
    }
    digits := b.String()
    if digits == "" {
        return ""
    }
    if !plus && strings.HasPrefix(digits, "00") {
        digits = digits[2:]
        plus = true
        if digits == "" {
            return ""
        }
    }
    if plus {
        return "+" + digits
    }
    return digits
}
