package models

// Usage record kinds.
const (
	KindRequest = "request"
	KindError   = "error"
	KindUsage   = "usage"
)

// UsageRecord is one statistics event persisted by the usage ledger.
type UsageRecord struct {
	ID               string `gorm:"primaryKey" json:"id"`
	Timestamp        int64  `gorm:"index" json:"timestamp"` // unix milliseconds
	Model            string `gorm:"index" json:"model"`
	Kind             string `gorm:"index" json:"kind"`
	PromptTokens     int64  `json:"prompt_tokens,omitempty"`
	CompletionTokens int64  `json:"completion_tokens,omitempty"`
	TotalTokens      int64  `json:"total_tokens,omitempty"`
}

// ModelSummary aggregates UsageRecord rows per model.
type ModelSummary struct {
	Model            string `json:"model"`
	Requests         int64  `json:"requests"`
	Errors           int64  `json:"errors"`
	PromptTokens     int64  `json:"promptTokens"`
	CompletionTokens int64  `json:"completionTokens"`
	TotalTokens      int64  `json:"totalTokens"`
}
