// Package lang tags text as Chinese, English or a mix of both.
package lang

import "unicode"

// Language tags returned by Detect.
const (
	Chinese         = "zh"
	English         = "en"
	ChineseDominant = "zh-en"
	EnglishDominant = "en-zh"
	Mixed           = "mixed"
	Unknown         = "unknown"
)

// Detect counts Han characters against ASCII letters and returns a tag.
// Digits, punctuation and other scripts are ignored.
func Detect(text string) string {
	var han, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			han++
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			latin++
		}
	}

	switch {
	case han == 0 && latin == 0:
		return Unknown
	case latin == 0:
		return Chinese
	case han == 0:
		return English
	case han > latin:
		return ChineseDominant
	case latin > han:
		return EnglishDominant
	default:
		return Mixed
	}
}
