package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"erp-backend/internal/analytics"
	"erp-backend/internal/timeutil"
	"erp-backend/pkg/utils"

	"github.com/gorilla/mux"
)

type AnalyticsHandler struct {
	Engine *analytics.Engine
}

func NewAnalyticsHandler(e *analytics.Engine) *AnalyticsHandler {
	return &AnalyticsHandler{Engine: e}
}

func section[T any](w http.ResponseWriter, r *http.Request, compute func(context.Context) (T, error)) {
	v, err := compute(r.Context())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, v)
}

func (h *AnalyticsHandler) Comprehensive(w http.ResponseWriter, r *http.Request) {
	section(w, r, h.Engine.Comprehensive)
}

func (h *AnalyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	section(w, r, h.Engine.Overview)
}

func (h *AnalyticsHandler) Financial(w http.ResponseWriter, r *http.Request) {
	section(w, r, h.Engine.Financial)
}

func (h *AnalyticsHandler) Operational(w http.ResponseWriter, r *http.Request) {
	section(w, r, h.Engine.Operational)
}

func (h *AnalyticsHandler) Performance(w http.ResponseWriter, r *http.Request) {
	section(w, r, h.Engine.Performance)
}

func (h *AnalyticsHandler) Trends(w http.ResponseWriter, r *http.Request) {
	section(w, r, h.Engine.Trends)
}

func (h *AnalyticsHandler) Predictions(w http.ResponseWriter, r *http.Request) {
	section(w, r, h.Engine.Predictions)
}

func (h *AnalyticsHandler) Charts(w http.ResponseWriter, r *http.Request) {
	section(w, r, h.Engine.Charts)
}

func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	section(w, r, h.Engine.Summary)
}

func (h *AnalyticsHandler) DailyReport(w http.ResponseWriter, r *http.Request) {
	section(w, r, h.Engine.DailyReport)
}

// Report handles GET /analytics/reports/{type}?format=json|pdf|xlsx. Every
// other query parameter is passed through as a filter.
func (h *AnalyticsHandler) Report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := strings.ToLower(q.Get("format"))
	filters := make(map[string]string)
	for k, v := range q {
		if k == "format" || len(v) == 0 {
			continue
		}
		filters[k] = v[0]
	}

	report, err := h.Engine.CustomReport(r.Context(), mux.Vars(r)["type"], filters)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	body, contentType, err := analytics.Render(report, format)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	if format != "" && format != analytics.FormatJSON {
		name := fmt.Sprintf("%s_report_%s.%s", report.ReportType, report.GeneratedAt.In(timeutil.Loc).Format(timeutil.FileLayout), format)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *AnalyticsHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.ClearCache(r.Context()); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Analytics cache cleared"})
}
