// Package textnorm canonicalizes user-entered Korean text so equal strings
// compare equal regardless of input method.
package textnorm

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NFC trims surrounding whitespace and returns s in Unicode NFC form.
func NFC(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NFCAll applies NFC to each element and drops empty results.
func NFCAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = NFC(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
