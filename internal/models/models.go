package models

import "time"

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// Test results. Result on a TestRecord is always one of these two; item
// results may carry other strings from the source file.
const (
	ResultPass = "PASS"
	ResultFail = "FAIL"
)

// TestRecord is the canonical shape every imported test log normalizes to.
// Result is derived from the items, never trusted from the input. Serial
// numbers repeat across retests; ID is the only unique key.
type TestRecord struct {
	ID           int        `json:"id"`
	SerialNumber string     `json:"serial_number"`
	WorkOrder    string     `json:"work_order"`
	Station      string     `json:"station"`
	Model        string     `json:"model"`
	Result       string     `json:"result"`
	TestTime     string     `json:"test_time"`
	Date         string     `json:"date"`
	Time         string     `json:"time"`
	Tester       string     `json:"tester"`
	PartNumber   string     `json:"part_number"`
	Items        []TestItem `json:"items"`
}

// TestItem is a single measurement inside a record. Value is always a
// scalar-or-string at rest; object values are JSON-stringified on import.
type TestItem struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Result string `json:"result"`
}

// LogFile is a raw .log blob stored alongside its test records.
// ID is synthesized as serial_epochMillis.
type LogFile struct {
	ID        string    `json:"id"`
	Serial    string    `json:"serial"`
	FileName  string    `json:"file_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Size      int       `json:"size"`
}

// LogMapping correlates a test record with a stored log file.
// RecordKey is the composite serial_timestamp_station primary key.
type LogMapping struct {
	RecordKey string `json:"record_key"`
	Serial    string `json:"serial"`
	FileName  string `json:"file_name"`
	LogID     string `json:"log_id"`
}

// FilterSpec holds the optional, AND-combined query dimensions.
// An empty value means no restriction on that dimension.
type FilterSpec struct {
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Result       string `json:"result"`
	SerialNumber string `json:"serial_number"`
	WorkOrder    string `json:"work_order"`
	Station      string `json:"station"`
	Model        string `json:"model"`
}

// KPI is the dashboard summary block.
type KPI struct {
	Total               int     `json:"total"`
	Passed              int     `json:"passed"`
	Failed              int     `json:"failed"`
	PassRate            float64 `json:"pass_rate"`
	DeviceCount         int     `json:"device_count"`
	PassedDeviceCount   int     `json:"passed_device_count"`
	ProductionYieldRate float64 `json:"production_yield_rate"`
	RetestCount         int     `json:"retest_count"`
	Trend               string  `json:"trend"`
}

// GroupStat is one row of the per-station or per-model breakdown.
type GroupStat struct {
	Name     string  `json:"name"`
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"`
}

// DailyPoint is one calendar-day bucket of the time series.
type DailyPoint struct {
	Date        string  `json:"date"`
	Total       int     `json:"total"`
	PassRate    float64 `json:"pass_rate"`
	DeviceCount int     `json:"device_count"`
	RetestCount int     `json:"retest_count"`
}

// FailureReason is one row of the failure-frequency ranking.
type FailureReason struct {
	Reason      string  `json:"reason"`
	Count       int     `json:"count"`
	Total       int     `json:"total"`
	FailureRate float64 `json:"failure_rate"`
}

// RetestStationStat reports retest activity for one station. Stations with
// no retested serials are omitted from the result entirely.
type RetestStationStat struct {
	Station        string  `json:"station"`
	OriginalCount  int     `json:"original_count"`
	RetestCount    int     `json:"retest_count"`
	RetestRate     float64 `json:"retest_rate"`
	RetestPassRate float64 `json:"retest_pass_rate"`
}

// RetestGroup is a derived view of repeated failures for one serial.
// Never persisted; recomputed on every query.
type RetestGroup struct {
	SerialNumber string       `json:"serial_number"`
	RetestCount  int          `json:"retest_count"`
	First        TestRecord   `json:"first"`
	Last         TestRecord   `json:"last"`
	Records      []TestRecord `json:"records"`
	FailedItems  []string     `json:"failed_items"`
}

// Diagnostic is a non-fatal degradation note produced during import.
type Diagnostic struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ImportSummary is the result of one batch import.
type ImportSummary struct {
	Imported     int          `json:"imported"`
	Paired       int          `json:"paired"`
	LogFiles     int          `json:"log_files"`
	Placeholders int          `json:"placeholders"`
	Total        int          `json:"total"`
	Diagnostics  []Diagnostic `json:"diagnostics"`
}

// StorageUsage is the advisory byte usage report.
type StorageUsage struct {
	Used  int64 `json:"used"`
	Quota int64 `json:"quota"`
}
