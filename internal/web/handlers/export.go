package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/schoolmap/internal/audit"
	"github.com/schoolmap/internal/engine"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler handles data export endpoints
type ExportHandler struct {
	Store  *RunStore
	Config *Config
}

// ReviewWorkbook streams the diagnostics as an Excel workbook.
func (h *ExportHandler) ReviewWorkbook(w http.ResponseWriter, r *http.Request) {
	if !h.Config.Features.ExportEnabled {
		http.Error(w, "Export feature disabled", http.StatusForbidden)
		return
	}
	result, ok := currentRun(h.Store, w)
	if !ok {
		return
	}

	f, err := audit.BuildWorkbook(result.Report)
	if err != nil {
		zap.L().Error("failed to build workbook", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build workbook")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "review-"+result.RunID+".xlsx"))
	if err := f.Write(w); err != nil {
		zap.L().Warn("failed to stream workbook", zap.Error(err))
	}
}

// MergedJSON downloads the merged mapping exactly as the exporter writes it.
func (h *ExportHandler) MergedJSON(w http.ResponseWriter, r *http.Request) {
	if !h.Config.Features.ExportEnabled {
		http.Error(w, "Export feature disabled", http.StatusForbidden)
		return
	}
	result, ok := currentRun(h.Store, w)
	if !ok {
		return
	}

	data, err := engine.MarshalMerged(result.Merged)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode merged set")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", engine.MergedJSONFile))
	w.Write(append(data, '\n'))
}
