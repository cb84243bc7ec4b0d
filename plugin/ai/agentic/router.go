// Package agentic routes open-ended requests that matched no operational
// intent to one of the assistant's agent capabilities, extracting the
// parameters each capability needs.
package agentic

import (
	"regexp"
	"strings"
)

// SubIntent identifies an agent capability.
type SubIntent string

const (
	SubIntentKnowledgeSearch SubIntent = "KNOWLEDGE_SEARCH"
	SubIntentWebSearch       SubIntent = "WEB_SEARCH"
	SubIntentTraceability    SubIntent = "TRACEABILITY"
	SubIntentGeneralChat     SubIntent = "GENERAL_CHAT"
)

// Result is the outcome of sub-intent routing.
type Result struct {
	SubIntent  SubIntent
	Confidence float64
	// Query is the rewritten query for the search capabilities.
	Query string
	// Params carries extracted entities, e.g. batch_no for traceability.
	Params map[string]string
	// NeedsClarification is set when a required parameter is missing.
	NeedsClarification bool
	Clarification      string
}

// Router scores sub-intents by keyword evidence. It is stateless and safe
// for concurrent use.
type Router struct{}

// NewRouter creates a sub-intent router.
func NewRouter() *Router {
	return &Router{}
}

var subIntentKeywords = map[SubIntent][]string{
	SubIntentKnowledgeSearch: {
		"标准", "规范", "工艺", "参数", "手册", "文档", "规程", "知识",
		"怎么设置", "如何配置", "操作方法",
	},
	SubIntentWebSearch: {
		"最新", "新闻", "行情", "价格", "市场", "政策", "发布",
		"搜索", "查一下网上", "网上",
	},
	SubIntentTraceability: {
		"追溯", "溯源", "批次", "流向", "来料", "去向", "质量追踪", "追踪",
	},
}

var traceParamPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"batch_no", regexp.MustCompile(`批次号?[：:]*\s*([A-Za-z0-9\-_]+)`)},
	{"product_code", regexp.MustCompile(`产品(?:编号|代码|号)?[：:]*\s*([A-Za-z0-9\-_]+)`)},
	{"trace_code", regexp.MustCompile(`追溯码[：:]*\s*([A-Za-z0-9\-_]+)`)},
}

// genericCodePattern is the last-resort extractor for an identifier-looking
// token when no labeled parameter was found.
var genericCodePattern = regexp.MustCompile(`\b([A-Z]{2,}[0-9\-_]{3,}|[0-9]{6,})\b`)

var fillerPrefixes = []string{"帮我", "请问", "请", "麻烦", "我想知道", "我想"}

const clarifyMissingBatch = "请提供需要追溯的批次号或产品编号。"

// Route picks the sub-intent for the input and extracts its parameters.
// It always produces a result; GENERAL_CHAT is the floor.
func (r *Router) Route(input string) *Result {
	best := SubIntentGeneralChat
	bestCount := 0
	for _, sub := range []SubIntent{SubIntentTraceability, SubIntentKnowledgeSearch, SubIntentWebSearch} {
		count := 0
		for _, kw := range subIntentKeywords[sub] {
			if strings.Contains(input, kw) {
				count++
			}
		}
		if count > bestCount {
			best = sub
			bestCount = count
		}
	}

	result := &Result{
		SubIntent:  best,
		Confidence: confidence(bestCount, input),
		Query:      rewriteQuery(input, best),
	}

	if best == SubIntentTraceability {
		result.Params = extractTraceParams(input)
		// Traceability cannot run without a batch number, even when other
		// labeled identifiers were extracted.
		if result.Params["batch_no"] == "" {
			result.NeedsClarification = true
			result.Clarification = clarifyMissingBatch
		}
	}
	return result
}

// confidence combines keyword evidence with input length. Short inputs are
// weaker evidence than elaborated ones. The result never exceeds 0.95.
func confidence(keywordCount int, input string) float64 {
	if keywordCount == 0 {
		// General chat is chosen by elimination, not evidence.
		return 0.3
	}
	evidence := float64(keywordCount) * 0.25
	if evidence > 0.9 {
		evidence = 0.9
	}
	length := float64(len([]rune(input))) / 50
	if length > 1 {
		length = 1
	}
	score := evidence * (0.7 + 0.3*length)
	if score > 0.95 {
		score = 0.95
	}
	return score
}

// extractTraceParams runs the labeled patterns first and falls back to a
// generic identifier scan.
func extractTraceParams(input string) map[string]string {
	params := make(map[string]string)
	for _, p := range traceParamPatterns {
		if m := p.pattern.FindStringSubmatch(input); len(m) > 1 {
			params[p.name] = m[1]
		}
	}
	if len(params) == 0 {
		if m := genericCodePattern.FindStringSubmatch(input); len(m) > 1 {
			params["batch_no"] = m[1]
		}
	}
	return params
}

// rewriteQuery strips conversational filler and appends the qualifier each
// search capability benefits from.
func rewriteQuery(input string, sub SubIntent) string {
	query := strings.TrimSpace(input)
	for _, prefix := range fillerPrefixes {
		query = strings.TrimPrefix(query, prefix)
	}
	query = strings.ReplaceAll(query, "一下", "")
	query = strings.TrimSpace(query)
	if query == "" {
		query = strings.TrimSpace(input)
	}

	switch sub {
	case SubIntentKnowledgeSearch:
		if !strings.Contains(query, "标准") && !strings.Contains(query, "规范") {
			query += " 行业标准"
		}
	case SubIntentWebSearch:
		if !strings.Contains(query, "最新") {
			query += " 最新"
		}
	}
	return query
}
