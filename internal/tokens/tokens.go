// Package tokens counts prompt tokens for model routing. It lazily loads the
// cl100k_base encoding on first use and falls back to a rune heuristic when the
// encoding cannot be loaded.
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

var (
	once     sync.Once
	encoding *tiktoken.Tiktoken
)

func loadEncoding() *tiktoken.Tiktoken {
	once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// Count returns the token count of text, using tiktoken when available.
func Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := loadEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// Estimate is a heuristic count: max(runes/2, words). Japanese text runs close to
// one token per two characters, denser than the usual runes/4 for English.
func Estimate(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 2
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}
