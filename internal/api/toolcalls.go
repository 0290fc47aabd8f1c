package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ainventory/ainventory-server/internal/chread"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListToolCalls(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	params := chread.ListToolCallsParams{
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.PageSize < 1 {
		params.PageSize = 50
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("tool"); v != "" {
		params.ToolName = &v
	}
	if v := q.Get("outcome"); v != "" {
		params.Outcome = &v
	}
	if v := q.Get("source"); v != "" {
		params.Source = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	calls, total, err := d.Reader.ListToolCalls(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list tool calls", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list tool calls"})
		return
	}
	if calls == nil {
		calls = []chread.ToolCallRow{}
	}

	writeJSON(w, http.StatusOK, ToolCallListResp{
		Calls:    calls,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

func (d *Dependencies) handleGetToolCall(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	call, err := d.Reader.GetToolCall(r.Context(), r.PathValue("request_id"))
	if err != nil {
		d.Logger.Error("failed to get tool call", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get tool call"})
		return
	}
	if call == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool call not found."})
		return
	}

	writeJSON(w, http.StatusOK, call)
}

func (d *Dependencies) handleToolStats(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	days := queryInt(r.URL.Query(), "days", 7)
	if days < 1 || days > 90 {
		days = 7
	}

	stats, err := d.Reader.GetToolStats(r.Context(), days)
	if err != nil {
		d.Logger.Error("failed to get tool stats", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get tool stats"})
		return
	}
	if stats == nil {
		stats = []chread.ToolStats{}
	}

	writeJSON(w, http.StatusOK, ToolStatsResp{Days: days, Tools: stats})
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
