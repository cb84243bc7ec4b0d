// Package matcher implements the deterministic first pass of the intent
// pipeline: regex and keyword matching over the current intent snapshot.
// Target: 0ms latency, no network calls.
package matcher

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/hanbai/mescopilot/store"
)

// Matcher evaluates intent regexes and keyword lists against user input.
// It is a pure function over the intent snapshot passed to Match; compiled
// regexes are memoized by pattern text.
type Matcher struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp

	// warnedCodes tracks intents whose malformed pattern was already
	// logged, so a bad regex warns once instead of on every request.
	warnedCodes sync.Map
}

// NewMatcher creates a new matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		compiled: make(map[string]*regexp.Regexp),
	}
}

// MatchedIntent describes the intent the matcher selected, together with
// how it matched.
type MatchedIntent struct {
	Intent       *store.IntentDefinition
	ByRegex      bool
	KeywordCount int
	// Params holds named-group captures from the regex, when it matched.
	Params map[string]string
}

// Match classifies input against the intents. The regex pass runs first in
// priority order and short-circuits: a regex hit is a stronger signal than
// any keyword score. The keyword pass then collects every intent with at
// least one keyword substring hit and picks by (priority desc, hits desc).
// Returns nil when nothing matches. Pure over the snapshot: no side effects.
func (m *Matcher) Match(input string, intents []*store.IntentDefinition) *MatchedIntent {
	normalized := Normalize(input)
	if normalized == "" || len(intents) == 0 {
		return nil
	}

	ordered := make([]*store.IntentDefinition, len(intents))
	copy(ordered, intents)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	// First pass: regex with contains semantics, case-insensitive.
	for _, intent := range ordered {
		if intent.Pattern == "" {
			continue
		}
		re := m.compile(intent.Code, intent.Pattern)
		if re == nil {
			continue
		}
		if re.MatchString(input) {
			return &MatchedIntent{
				Intent:  intent,
				ByRegex: true,
				Params:  extractParams(re, input),
			}
		}
	}

	// Second pass: keyword substring counting.
	var best *MatchedIntent
	for _, intent := range ordered {
		count := 0
		for _, kw := range intent.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(normalized, kw) {
				count++
			}
		}
		if count == 0 {
			continue
		}
		// ordered is already priority-descending, so only a strictly
		// higher hit count at the same priority displaces the current best.
		if best == nil ||
			(intent.Priority == best.Intent.Priority && count > best.KeywordCount) {
			best = &MatchedIntent{Intent: intent, KeywordCount: count}
		}
	}
	return best
}

// ExtractParams runs the intent's regex against the input and returns its
// capture groups. Named groups keep their names; an unnamed first group is
// returned under "value".
func (m *Matcher) ExtractParams(intent *store.IntentDefinition, input string) map[string]string {
	if intent == nil || intent.Pattern == "" {
		return nil
	}
	re := m.compile(intent.Code, intent.Pattern)
	if re == nil {
		return nil
	}
	return extractParams(re, input)
}

// Normalize trims and lowercases input for keyword comparison.
func Normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

func extractParams(re *regexp.Regexp, input string) map[string]string {
	match := re.FindStringSubmatch(input)
	if match == nil {
		return nil
	}

	params := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i == 0 || i >= len(match) || match[i] == "" {
			continue
		}
		if name == "" {
			if _, ok := params["value"]; !ok {
				params["value"] = match[i]
			}
			continue
		}
		params[name] = match[i]
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// compile returns the compiled case-insensitive regex for the pattern, or
// nil when the pattern is malformed. A malformed pattern must not take the
// whole matching pass down; it is logged once and skipped.
func (m *Matcher) compile(code, pattern string) *regexp.Regexp {
	m.mu.RLock()
	re, ok := m.compiled[pattern]
	m.mu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		if _, warned := m.warnedCodes.LoadOrStore(code, true); !warned {
			slog.Warn("malformed intent pattern, treating as absent",
				"intent_code", code,
				"pattern", pattern,
				"error", err)
		}
		return nil
	}

	m.mu.Lock()
	m.compiled[pattern] = re
	m.mu.Unlock()
	return re
}
