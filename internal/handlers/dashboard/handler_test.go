package dashboard

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"mesdash/internal/config"
	"mesdash/internal/importer"
	"mesdash/internal/models"
	"mesdash/internal/store"

	_ "modernc.org/sqlite"
)

func setupHandler(t *testing.T) *Handler {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	engine := store.NewEngine(db, t.TempDir())
	cfg := &config.Config{
		Stations:          []string{"ST1", "ST2"},
		Models:            []string{"M1"},
		ReferencePassRate: 95.0,
	}
	return &Handler{
		Store:    engine,
		Pipeline: importer.New(engine, nil),
		Cfg:      cfg,
	}
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		part.Write([]byte(content))
	}
	mw.Close()
	return body, mw.FormDataContentType()
}

func importFiles(t *testing.T, h *Handler, files map[string]string) models.ImportSummary {
	t.Helper()
	body, contentType := multipartBody(t, files)
	req := httptest.NewRequest("POST", "/api/v1/import", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.Import(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data models.ImportSummary `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	return resp.Data
}

const fixtureJSON = `{"Serial Number":"CH001","Test Time":"2025-01-01 08:00:00","Station":"ST1","Model":"M1",
	"Items":[{"name":"Voltage","value":"3.3","result":"PASS"},{"name":"Current","value":"0.5","result":"FAIL"}]}`

func TestImportEndpoint(t *testing.T) {
	h := setupHandler(t)
	summary := importFiles(t, h, map[string]string{
		"20250101-080000-CH001[ST1].json": fixtureJSON,
		"20250101-080000-CH001[ST1].log":  "tester output",
	})
	if summary.Imported != 1 || summary.Paired != 1 || summary.LogFiles != 1 {
		t.Fatalf("summary wrong: %+v", summary)
	}
}

func TestImportEndpointRejectsEmptyUpload(t *testing.T) {
	h := setupHandler(t)
	body, contentType := multipartBody(t, nil)
	req := httptest.NewRequest("POST", "/api/v1/import", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.Import(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRecordsEndpointWithFilter(t *testing.T) {
	h := setupHandler(t)
	importFiles(t, h, map[string]string{
		"a.json": `{"Serial Number":"CH001","Station":"ST1","Test Time":"2025-01-01 08:00:00"}`,
		"b.json": `{"Serial Number":"CH002","Station":"ST2","Test Time":"2025-01-02 08:00:00"}`,
	})

	req := httptest.NewRequest("GET", "/api/v1/records?station=ST1", nil)
	w := httptest.NewRecorder()
	h.Records(w, req)
	var resp struct {
		Data []models.TestRecord `json:"data"`
		Meta *models.Meta        `json:"meta"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].SerialNumber != "CH001" {
		t.Fatalf("filtered records wrong: %+v", resp.Data)
	}
	if resp.Meta == nil || resp.Meta.Total != 1 {
		t.Errorf("meta total wrong: %+v", resp.Meta)
	}
}

func TestKPIEndpoint(t *testing.T) {
	h := setupHandler(t)
	importFiles(t, h, map[string]string{"a.json": fixtureJSON})

	req := httptest.NewRequest("GET", "/api/v1/stats/kpi", nil)
	w := httptest.NewRecorder()
	h.KPI(w, req)
	var resp struct {
		Data models.KPI `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Total != 1 || resp.Data.Failed != 1 || resp.Data.PassRate != 0 {
		t.Errorf("KPI wrong: %+v", resp.Data)
	}
	if resp.Data.Trend != "down" {
		t.Errorf("trend = %q, want down", resp.Data.Trend)
	}
}

func TestStationsEndpointIncludesConfigured(t *testing.T) {
	h := setupHandler(t)
	importFiles(t, h, map[string]string{"a.json": fixtureJSON})

	req := httptest.NewRequest("GET", "/api/v1/stats/stations", nil)
	w := httptest.NewRecorder()
	h.Stations(w, req)
	var resp struct {
		Data []models.GroupStat `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("expected both configured stations, got %+v", resp.Data)
	}
	if resp.Data[1].Name != "ST2" || resp.Data[1].Total != 0 {
		t.Errorf("empty configured station missing: %+v", resp.Data)
	}
}

func TestLogEndpoint(t *testing.T) {
	h := setupHandler(t)
	importFiles(t, h, map[string]string{
		"20250101-080000-CH001[ST1].json": fixtureJSON,
		"20250101-080000-CH001[ST1].log":  "tester output",
	})

	req := httptest.NewRequest("GET", "/api/v1/logs?key=CH001_20250101080000_ST1", nil)
	w := httptest.NewRecorder()
	h.Log(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data models.LogFile `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Content != "tester output" {
		t.Errorf("log content = %q", resp.Data.Content)
	}

	req = httptest.NewRequest("GET", "/api/v1/logs?key=missing", nil)
	w = httptest.NewRecorder()
	h.Log(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing mapping status = %d, want 404", w.Code)
	}
}

func TestClearEndpoint(t *testing.T) {
	h := setupHandler(t)
	importFiles(t, h, map[string]string{"a.json": fixtureJSON})

	req := httptest.NewRequest("POST", "/api/v1/clear", nil)
	w := httptest.NewRecorder()
	h.Clear(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}
	if n := h.Store.CountTestRecords(); n != 0 {
		t.Errorf("records after clear = %d", n)
	}
}

func TestExportEndpoint(t *testing.T) {
	h := setupHandler(t)
	importFiles(t, h, map[string]string{"a.json": fixtureJSON})

	req := httptest.NewRequest("GET", "/api/v1/export?format=xlsx", nil)
	w := httptest.NewRecorder()
	h.Export(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("content type = %q", ct)
	}
	if w.Body.Len() == 0 {
		t.Error("empty workbook")
	}

	req = httptest.NewRequest("GET", "/api/v1/export?format=pdf", nil)
	w = httptest.NewRecorder()
	h.Export(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unsupported format status = %d, want 400", w.Code)
	}
}

func TestUsageEndpoint(t *testing.T) {
	h := setupHandler(t)
	req := httptest.NewRequest("GET", "/api/v1/storage", nil)
	w := httptest.NewRecorder()
	h.Usage(w, req)
	var resp struct {
		Data models.StorageUsage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Used <= 0 {
		t.Errorf("expected positive usage, got %+v", resp.Data)
	}
}
