package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/ainventory/ainventory-server/internal/tools"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListTools(w http.ResponseWriter, _ *http.Request) {
	list := d.Tools.List()
	resp := ToolListResp{Tools: make([]ToolResp, 0, len(list))}
	for _, t := range list {
		resp.Tools = append(resp.Tools, ToolResp{
			Name:        t.Name,
			Description: t.Description,
			RiskTier:    t.RiskTier,
			ReadOnly:    t.ReadOnly(),
			InputSchema: t.InputSchema,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCallTool runs one tool with the JSON object body as its arguments.
// An empty body means no arguments.
func (d *Dependencies) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var args map[string]any
	if err := readJSON(r, &args); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Request body must be a JSON object"})
		return
	}

	result, err := d.Tools.Call(r.Context(), name, args, tools.SourceHTTP)
	if err != nil {
		status, detail := toolErrorStatus(err)
		if status == http.StatusInternalServerError {
			d.Logger.Error("tool call failed", zap.String("tool", name), zap.Error(err))
		}
		writeJSON(w, status, ErrorResp{Detail: detail})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func toolErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, tools.ErrInvalidArguments):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, tools.ErrNotImplemented):
		return http.StatusNotImplemented, err.Error()
	default:
		return http.StatusInternalServerError, "Tool call failed"
	}
}
