package server

import "github.com/Kizito2001/defi-swap-supply/internal/swapsupply"

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK     bool  `json:"ok"`              // Service health status
	Engine bool  `json:"engine"`          // Engine configured (run endpoints available)
	Redis  *bool `json:"redis,omitempty"` // Redis reachable; omitted when not configured
}

// RunRequest asks for a swap-and-supply run, or a quote or risk check for one
type RunRequest struct {
	Amount      string  `json:"amount"`                 // Human units of the input token, e.g. "10"
	SlippageBps *uint16 `json:"slippage_bps,omitempty"` // Optional slippage override
	FeeTier     *uint32 `json:"fee_tier,omitempty"`     // Optional pool fee override (100, 500, 3000, 10000)
	Reason      string  `json:"reason,omitempty"`       // Free text kept in logs
}

// RunResponse carries the run result; Error is set when a step failed after
// the run reached the chain
type RunResponse struct {
	Result *swapsupply.RunResult `json:"result"`
	Error  string                `json:"error,omitempty"`
}

// FlagUpsertRequest represents a request to create or update a feature flag
type FlagUpsertRequest struct {
	Key   string `json:"key"`   // Flag key (must match regex pattern)
	Value bool   `json:"value"` // Flag value (true/false)
}

// FlagUpdateRequest represents a request to update an existing feature flag
type FlagUpdateRequest struct {
	Value bool `json:"value"` // New flag value
}

// AIAskRequest represents a natural language query request
type AIAskRequest struct {
	Question string `json:"question"` // Natural language question about run history
	Model    string `json:"model"`    // Optional AI model override
}

// AIAskResponse represents the response from an AI query
type AIAskResponse struct {
	SQL       string `json:"sql"`                 // Generated SQL query
	Answer    string `json:"answer"`              // Natural language answer
	Rows      int    `json:"rows"`                // Rows the answer is based on
	Truncated bool   `json:"truncated,omitempty"` // Result set was cut short
	TookMs    int64  `json:"took_ms"`             // Execution time in milliseconds
}
