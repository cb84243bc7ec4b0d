package semantic

import (
	"time"

	"github.com/hanbai/mescopilot/store"
)

// Tier is the escalation band chosen for one input.
type Tier string

const (
	// TierDirectExecute means the top score cleared the direct-execute
	// threshold and the best intent can run without further resolution.
	TierDirectExecute Tier = "DIRECT_EXECUTE"
	// TierNeedReranking means the score landed in the uncertain band and
	// the candidates should be confirmed by the LLM with few-shot grounding.
	TierNeedReranking Tier = "NEED_RERANKING"
	// TierNeedFullLLM means similarity gave no usable signal and the full
	// LLM fallback owns the classification.
	TierNeedFullLLM Tier = "NEED_FULL_LLM"
)

// Candidate pairs an intent with its similarity to the input.
type Candidate struct {
	Intent *store.IntentDefinition
	Score  float64
}

// Decision is the router's output for one input. The payload depends on
// the tier: DirectExecute carries Best, NeedReranking carries Best plus
// Candidates, NeedFullLLM carries only Candidates (possibly empty).
// A Decision is immutable once returned.
type Decision struct {
	Tier       Tier
	Best       *Candidate
	Candidates []Candidate
	TopScore   float64
	Elapsed    time.Duration
}

func directExecute(best Candidate, candidates []Candidate, elapsed time.Duration) Decision {
	return Decision{
		Tier:       TierDirectExecute,
		Best:       &best,
		Candidates: candidates,
		TopScore:   best.Score,
		Elapsed:    elapsed,
	}
}

func needReranking(best Candidate, candidates []Candidate, elapsed time.Duration) Decision {
	return Decision{
		Tier:       TierNeedReranking,
		Best:       &best,
		Candidates: candidates,
		TopScore:   best.Score,
		Elapsed:    elapsed,
	}
}

func needFullLLM(candidates []Candidate, topScore float64, elapsed time.Duration) Decision {
	return Decision{
		Tier:       TierNeedFullLLM,
		Candidates: candidates,
		TopScore:   topScore,
		Elapsed:    elapsed,
	}
}
