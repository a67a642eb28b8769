// Package models holds the shared data types that flow between the core's
// subsystems: catalog entries, requests/responses, rankings, upstream call
// records, and the capability/intent enums. Kept dependency-free so every
// other internal package can import it without cycles.
package models

import "time"

// Capability is one of the closed set of tags a provider or model can
// advertise. Extensible only by spec revision.
type Capability string

const (
	CapStreaming       Capability = "streaming"
	CapVision          Capability = "vision"
	CapAudio           Capability = "audio"
	CapFunctionCalling Capability = "function_calling"
	CapLongContext     Capability = "long_context"
	CapFast            Capability = "fast"
	CapReasoning       Capability = "reasoning"
	CapCodeGeneration  Capability = "code_generation"
	CapLocal           Capability = "local"
	CapCheap           Capability = "cheap"
)

// Intent is one of the closed set of prompt categories the classifier
// produces.
type Intent string

const (
	IntentCodeGeneration   Intent = "code_generation"
	IntentReasoningLogic   Intent = "reasoning_logic"
	IntentCreativeTasks    Intent = "creative_tasks"
	IntentSecurityAnalysis Intent = "security_analysis"
	IntentMathProofs       Intent = "mathematical_proofs"
	IntentMultiModal       Intent = "multi_modal"
	IntentGeneral          Intent = "general"
)

// Outcome describes how an upstream call or response terminated.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeError          Outcome = "error"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeShortCircuited Outcome = "short_circuited"
)

// CircuitState names the three states a CircuitBreaker can be in.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// Strategy names a LoadBalancer selection algorithm.
type Strategy string

const (
	StrategyRoundRobin      Strategy = "round_robin"
	StrategyLeastConnection Strategy = "least_connections"
	StrategyWeighted        Strategy = "weighted"
	StrategyRandom          Strategy = "random"
)

// FanOutMode names a FanOut completion policy.
type FanOutMode string

const (
	FanOutAll          FanOutMode = "all"
	FanOutFirstSuccess FanOutMode = "first_success"
	FanOutQuorum       FanOutMode = "quorum"
)

// Endpoint is a concrete addressable target within a provider.
type Endpoint struct {
	ID     string  `json:"id" yaml:"id"`
	URL    string  `json:"url" yaml:"url"`
	Weight float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Model describes a single model offered by a provider.
type Model struct {
	ID           string       `json:"id"`
	ProviderID   string       `json:"provider_id"`
	ContextWindow int         `json:"context_window"`
	Capabilities []Capability `json:"capabilities,omitempty"`
	CostPer1K    float64      `json:"cost_per_1k"`
	P50LatencyMs int64        `json:"p50_latency_ms"`
	P95LatencyMs int64        `json:"p95_latency_ms"`
	QualityPrior float64      `json:"quality_prior"`
}

// Provider is the catalog's unit of registration: a stable identifier, the
// capabilities it advertises, its models, cost/latency priors, and its
// endpoints.
type Provider struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Capabilities []Capability `json:"capabilities"`
	Models       []Model      `json:"models"`
	Endpoints    []Endpoint   `json:"endpoints"`
	CostPer1K    float64      `json:"cost_per_1k"`
	P50LatencyMs int64        `json:"p50_latency_ms"`
	P95LatencyMs int64        `json:"p95_latency_ms"`
	QualityPrior float64      `json:"quality_prior"`
	Enabled      bool         `json:"enabled"`
}

// HasCapability reports whether the provider advertises cap directly.
func (p Provider) HasCapability(cap Capability) bool {
	for _, c := range p.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Preferences carries the request's soft routing biases.
type Preferences struct {
	PreferSpeed   bool `json:"prefer_speed,omitempty"`
	PreferCost    bool `json:"prefer_cost,omitempty"`
	PreferQuality bool `json:"prefer_quality,omitempty"`
}

// Request is a single completion/streaming request entering the core.
type Request struct {
	ID                   string       `json:"id"`
	Prompt               string       `json:"prompt"`
	RequiredCapabilities []Capability `json:"required_capabilities,omitempty"`
	Preferences          Preferences  `json:"preferences,omitempty"`
	Providers            []string     `json:"providers,omitempty"`
	Temperature          float64      `json:"temperature,omitempty"`
	MaxTokens            int          `json:"max_tokens,omitempty"`
	DeadlineMs           int64        `json:"deadline_ms,omitempty"`
}

// Ranking is one scored, ordered candidate produced by the Ranker.
type Ranking struct {
	ProviderID        string   `json:"provider_id"`
	Score             float64  `json:"score"`
	CapabilityMatch   float64  `json:"capability_match"`
	CostComponent     float64  `json:"cost_component"`
	LatencyComponent  float64  `json:"latency_component"`
	HealthComponent   float64  `json:"health_component"`
	QualityComponent  float64  `json:"quality_component"`
	Reason            string   `json:"reason"`
	Fallbacks         []string `json:"fallbacks,omitempty"`
}

// UpstreamCall records a single attempt at invoking an upstream provider.
type UpstreamCall struct {
	ProviderID string    `json:"provider_id"`
	ModelID    string    `json:"model_id"`
	EndpointID string    `json:"endpoint_id"`
	Start      time.Time `json:"start"`
	Deadline   time.Time `json:"deadline"`
	Outcome    Outcome   `json:"outcome"`
	Tokens     int       `json:"tokens"`
	ElapsedMs  int64     `json:"elapsed_ms"`
}

// Response is the result of one upstream call.
type Response struct {
	Text       string     `json:"text"`
	ProviderID string     `json:"provider_id"`
	ModelID    string     `json:"model_id"`
	Tokens     int        `json:"tokens"`
	ElapsedMs  int64      `json:"elapsed_ms"`
	Outcome    Outcome    `json:"outcome"`
	Score      float64    `json:"score"`
	Error      *CoreError `json:"error,omitempty"`
}

// FusedResponse is the consensus result of fusing 1..N Responses.
type FusedResponse struct {
	Text             string             `json:"text"`
	Contributions    map[string]float64 `json:"contributions"`
	FusedConfidence  float64            `json:"fused_confidence"`
	Constituents     []Response         `json:"constituents"`
}
