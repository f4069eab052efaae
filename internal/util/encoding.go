package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds a file name to NFC and trims surrounding space, so
// names read from NFD file systems compare equal to the ones a server echoes.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
