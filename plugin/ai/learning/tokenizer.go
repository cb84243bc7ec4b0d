package learning

import (
	"strings"
	"unicode"
)

// defaultStopWords covers the filler vocabulary of shop-floor requests in
// both Chinese and English. The set is read-only after construction.
var defaultStopWords = map[string]struct{}{
	"的": {}, "了": {}, "吗": {}, "呢": {}, "吧": {}, "啊": {},
	"我": {}, "你": {}, "他": {}, "她": {}, "它": {}, "我们": {},
	"请": {}, "请问": {}, "帮我": {}, "帮忙": {}, "麻烦": {},
	"一下": {}, "一个": {}, "这个": {}, "那个": {}, "什么": {},
	"怎么": {}, "如何": {}, "是否": {}, "可以": {}, "能否": {},
	"需要": {}, "想要": {}, "想": {}, "要": {}, "给": {},
	"在": {}, "是": {}, "有": {}, "和": {}, "与": {}, "或": {},
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "for": {}, "and": {},
	"or": {}, "please": {}, "me": {}, "my": {}, "can": {}, "could": {},
	"would": {}, "show": {}, "what": {}, "how": {}, "do": {}, "does": {},
}

// tokenize splits the input into candidate keyword tokens. Runs of Han
// characters form one token per run; ASCII words split on non-letter,
// non-digit boundaries.
func tokenize(input string) []string {
	var tokens []string
	var current []rune
	var currentHan bool

	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = current[:0]
		}
	}

	for _, r := range input {
		switch {
		case unicode.Is(unicode.Han, r):
			if !currentHan {
				flush()
			}
			currentHan = true
			current = append(current, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if currentHan {
				flush()
			}
			currentHan = false
			current = append(current, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// eligibleKeyword reports whether a token may become a learned keyword.
// Tokens shorter than two runes, purely numeric tokens, and stop words
// are rejected.
func eligibleKeyword(token string, stopWords map[string]struct{}) bool {
	lower := strings.ToLower(token)
	if len([]rune(lower)) < 2 {
		return false
	}
	if _, ok := stopWords[lower]; ok {
		return false
	}
	numeric := true
	for _, r := range lower {
		if !unicode.IsDigit(r) {
			numeric = false
			break
		}
	}
	return !numeric
}
