// Package dashboard exposes the pipeline to the view layer: import upload,
// filtered record queries, the aggregation endpoints and the xlsx export.
package dashboard

import (
	"net/http"
	"time"

	"mesdash/internal/config"
	"mesdash/internal/filter"
	"mesdash/internal/importer"
	"mesdash/internal/models"
	"mesdash/internal/response"
	"mesdash/internal/stats"
	"mesdash/internal/store"
)

// Handler holds dependencies for the dashboard endpoints. Everything is
// injected; the handler owns no global state.
type Handler struct {
	Store    *store.Engine
	Pipeline *importer.Pipeline
	Cfg      *config.Config
}

// filterFromQuery builds the uniform FilterSpec from query parameters.
// Absent and empty parameters both mean "no restriction".
func filterFromQuery(r *http.Request) models.FilterSpec {
	q := r.URL.Query()
	return models.FilterSpec{
		StartDate:    q.Get("start_date"),
		EndDate:      q.Get("end_date"),
		Result:       q.Get("result"),
		SerialNumber: q.Get("serial_number"),
		WorkOrder:    q.Get("work_order"),
		Station:      q.Get("station"),
		Model:        q.Get("model"),
	}
}

// filteredRecords loads the full snapshot and applies the request filter.
// Storage read failures have already degraded to an empty set inside the
// engine, so this never errors.
func (h *Handler) filteredRecords(r *http.Request) []models.TestRecord {
	records, err := h.Store.GetAllTestRecords()
	if err != nil {
		// Engine degrades internally; a hard error here means no data at all.
		return nil
	}
	return filter.Apply(records, filterFromQuery(r))
}

// Records handles GET /api/v1/records.
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	records := h.filteredRecords(r)
	if records == nil {
		records = []models.TestRecord{}
	}
	response.JSONMeta(w, records, len(records))
}

// KPI handles GET /api/v1/stats/kpi.
func (h *Handler) KPI(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, stats.ComputeKPI(h.filteredRecords(r), h.Cfg.ReferencePassRate))
}

// Stations handles GET /api/v1/stats/stations.
func (h *Handler) Stations(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, stats.ComputeStationStats(h.filteredRecords(r), h.Cfg.Stations))
}

// Models handles GET /api/v1/stats/models.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, stats.ComputeModelStats(h.filteredRecords(r), h.Cfg.Models))
}

// Daily handles GET /api/v1/stats/daily. Without an explicit range the
// series covers the last seven days including today.
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	spec := filterFromQuery(r)
	start, end := spec.StartDate, spec.EndDate
	if start == "" || end == "" {
		now := time.Now()
		end = now.Format("2006-01-02")
		start = now.AddDate(0, 0, -6).Format("2006-01-02")
	}
	response.JSON(w, stats.ComputeDailySeries(h.filteredRecords(r), start, end))
}

// Failures handles GET /api/v1/stats/failures.
func (h *Handler) Failures(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, stats.ComputeFailureReasons(h.filteredRecords(r)))
}

// Retests handles GET /api/v1/stats/retests.
func (h *Handler) Retests(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, stats.ComputeRetestStats(h.filteredRecords(r)))
}

// RetestGroups handles GET /api/v1/stats/retest-groups.
func (h *Handler) RetestGroups(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, stats.ComputeRetestGroups(h.filteredRecords(r)))
}

// Clear handles POST /api/v1/clear: the explicit clear-all-data operation,
// the only destructive one the pipeline has.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Pipeline.ClearAll(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, map[string]int{"total": h.Store.CountTestRecords()})
}

// Usage handles GET /api/v1/storage.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, h.Store.EstimateUsage())
}

// Log handles GET /api/v1/logs?key=<record_key>: resolves the mapping and
// returns the stored log blob.
func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		response.Err(w, "key is required", 400)
		return
	}
	mapping, ok := h.Store.GetLogMapping(key)
	if !ok {
		response.Err(w, "no log mapped to record", 404)
		return
	}
	lf, ok := h.Store.GetLogFile(mapping.LogID)
	if !ok {
		response.Err(w, "log file missing", 404)
		return
	}
	response.JSON(w, lf)
}
