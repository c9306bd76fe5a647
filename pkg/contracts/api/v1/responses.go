package api

import "time"

// Suggestion is a proposed correction for a word
type Suggestion struct {
	Value  string  `json:"value"`
	Weight float32 `json:"weight"`
}

// WordResult is the verdict for one word of the request text. Start and End
// are byte offsets.
type WordResult struct {
	Word        string       `json:"word"`
	IsCorrect   bool         `json:"is_correct"`
	Suggestions []Suggestion `json:"suggestions"`
	Start       int          `json:"start"`
	End         int          `json:"end"`
}

// GrammarError is a span flagged by a grammar checker
type GrammarError struct {
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Text        string   `json:"error_text"`
	RuleID      string   `json:"rule_id"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// CheckResponse is returned on success. Speller archives fill Results,
// grammar archives fill Errors.
type CheckResponse struct {
	Text     string         `json:"text"`
	Language string         `json:"language"`
	Kind     string         `json:"kind"`
	Results  []WordResult   `json:"results,omitempty"`
	Errors   []GrammarError `json:"errors,omitempty"`
}

// HealthResponse is the body of the health endpoints
type HealthResponse struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Version   string      `json:"version"`
	Resource  *Resource   `json:"resource,omitempty"`
	Engine    *EngineInfo `json:"engine,omitempty"`
}

// Resource describes the loaded archive
type Resource struct {
	Loaded   bool   `json:"loaded"`
	Path     string `json:"path"`
	Language string `json:"language"`
	Kind     string `json:"kind"`
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
}

// EngineInfo is a snapshot of the admission gate
type EngineInfo struct {
	Accepting   bool  `json:"accepting"`
	MaxInFlight int   `json:"max_in_flight"`
	InFlight    int64 `json:"in_flight"`
	Queued      int64 `json:"queued"`
	Abandoned   int64 `json:"abandoned"`
}

// Health status values
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusAlive     = "alive"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)
