package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where mescopilot stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// AI configuration
	AIEnabled           bool   // MESCOPILOT_AI_ENABLED
	AIEmbeddingProvider string // MESCOPILOT_AI_EMBEDDING_PROVIDER (default: siliconflow)
	AIEmbeddingModel    string // MESCOPILOT_AI_EMBEDDING_MODEL (default: BAAI/bge-m3)
	AIEmbeddingAPIKey   string // MESCOPILOT_AI_EMBEDDING_API_KEY
	AIEmbeddingBaseURL  string // MESCOPILOT_AI_EMBEDDING_BASE_URL
	AIClassifierBaseURL string // MESCOPILOT_AI_CLASSIFIER_BASE_URL (LLM fallback service)

	// Routing thresholds. These are deployment tunables, not constants:
	// recalibration is expected whenever the embedding model changes.
	RouteDirectExecuteThreshold float64 // default 0.88
	RouteRerankingThreshold     float64 // default 0.70
	RouteTopN                   int     // default 5

	// Few-shot example selection (MMR)
	FewShotLambda        float64 // relevance/diversity trade-off, default 0.7
	FewShotMinSimilarity float64 // candidate pool admission, default 0.55
	FewShotPoolSize      int     // default 30
	FewShotMinCount      int     // default 5
	FewShotMaxCount      int     // default 7

	// Keyword learning
	LearnMaxPerInput       int     // new keywords per utterance, default 3
	LearnMaxPerIntent      int     // per-tenant cap, default 30
	LearnInitialWeight     float64 // default 0.6
	LearnRecordWindowDays  int     // confirmed-record window for MMR pool, default 30
	LearnRecordWindowLimit int     // default 50
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(filepath.Dir(os.Args[0]) + "/" + dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}
	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate validates the profile and fills in defaults.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/mescopilot"
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("mescopilot_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	p.applyRoutingDefaults()
	return nil
}

// applyRoutingDefaults fills zero-valued routing tunables with their defaults.
func (p *Profile) applyRoutingDefaults() {
	if p.RouteDirectExecuteThreshold <= 0 {
		p.RouteDirectExecuteThreshold = 0.88
	}
	if p.RouteRerankingThreshold <= 0 {
		p.RouteRerankingThreshold = 0.70
	}
	if p.RouteTopN <= 0 {
		p.RouteTopN = 5
	}
	if p.FewShotLambda <= 0 {
		p.FewShotLambda = 0.7
	}
	if p.FewShotMinSimilarity <= 0 {
		p.FewShotMinSimilarity = 0.55
	}
	if p.FewShotPoolSize <= 0 {
		p.FewShotPoolSize = 30
	}
	if p.FewShotMinCount <= 0 {
		p.FewShotMinCount = 5
	}
	if p.FewShotMaxCount <= 0 {
		p.FewShotMaxCount = 7
	}
	if p.LearnMaxPerInput <= 0 {
		p.LearnMaxPerInput = 3
	}
	if p.LearnMaxPerIntent <= 0 {
		p.LearnMaxPerIntent = 30
	}
	if p.LearnInitialWeight <= 0 {
		p.LearnInitialWeight = 0.6
	}
	if p.LearnRecordWindowDays <= 0 {
		p.LearnRecordWindowDays = 30
	}
	if p.LearnRecordWindowLimit <= 0 {
		p.LearnRecordWindowLimit = 50
	}
}
