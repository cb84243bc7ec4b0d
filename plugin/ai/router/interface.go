// Package router orchestrates the intent resolution pipeline: keyword and
// regex matching first, then the semantic fast path, then few-shot
// reranking through the fallback classifier, with the agentic sub-router
// refining the general-question bucket.
package router

import (
	"context"

	"github.com/hanbai/mescopilot/plugin/ai/agentic"
	"github.com/hanbai/mescopilot/plugin/ai/fewshot"
	"github.com/hanbai/mescopilot/plugin/ai/semantic"
	"github.com/hanbai/mescopilot/store"
)

// RouterService is the intent resolution entry point for the conversation
// layer. It is the only operation upstream code needs.
type RouterService interface {
	// ResolveIntent classifies one user turn. Dependency failures never
	// surface as errors; they degrade to a clarification resolution.
	ResolveIntent(ctx context.Context, tenantID int64, input string) (*Resolution, error)

	// ConfirmResolution records user feedback that a resolution was
	// correct and feeds the learning loop.
	ConfirmResolution(ctx context.Context, tenantID, recordID int64, intentCode, input string) error

	// RefreshTenant rebuilds the tenant's semantic vector partition.
	RefreshTenant(ctx context.Context, tenantID int64) error
}

// Resolution is the pipeline's output for one turn. It is always usable:
// when no intent could be resolved, Clarification carries the question to
// put back to the user.
type Resolution struct {
	Intent     *store.IntentDefinition
	IntentCode string
	Confidence float64
	Method     store.MatchMethod
	Tier       semantic.Tier
	// Params carries entities extracted by the matcher or sub-router.
	Params map[string]string
	// RequiresConfirmation is set for sensitive or low-confidence results.
	RequiresConfirmation bool
	// Clarification is non-empty when the user should disambiguate or
	// rephrase instead of anything being executed.
	Clarification string
	// Agentic is set when the general-question bucket was refined into a
	// sub-intent.
	Agentic *agentic.Result
	// Examples are the few-shot examples used for reranking, if any.
	Examples []fewshot.Example
}

// Resolved reports whether the resolution names an executable intent.
func (r *Resolution) Resolved() bool {
	return r != nil && r.IntentCode != "" && r.Clarification == ""
}
