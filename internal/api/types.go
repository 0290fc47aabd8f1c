package api

import "github.com/ainventory/ainventory-server/internal/chread"

// --- Tools ---

// ToolResp describes one registered tool.
type ToolResp struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	RiskTier    string         `json:"risk_tier"`
	ReadOnly    bool           `json:"read_only"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolListResp is the response for GET /v1/tools.
type ToolListResp struct {
	Tools []ToolResp `json:"tools"`
}

// --- Audit trail ---

// ToolCallListResp is the response for GET /api/tool-calls.
type ToolCallListResp struct {
	Calls    []chread.ToolCallRow `json:"calls"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// ToolStatsResp is the response for GET /api/tool-calls/stats.
type ToolStatsResp struct {
	Days  int                `json:"days"`
	Tools []chread.ToolStats `json:"tools"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
