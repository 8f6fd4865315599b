package logging

import "fmt"

// DefaultLogMaxLen bounds upstream bodies copied into log fields (2KB).
const DefaultLogMaxLen = 2048

// Truncate shortens s to maxLen bytes and notes the original size.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is Truncate with DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return Truncate(string(b), DefaultLogMaxLen)
}
