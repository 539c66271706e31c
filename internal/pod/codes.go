package pod

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet excludes glyphs that read ambiguously when typed by hand
// (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ2345678"

// CodeLength is the fixed length of a pod join code.
const CodeLength = 6

// GenerateCode samples a join code from the fixed alphabet.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
