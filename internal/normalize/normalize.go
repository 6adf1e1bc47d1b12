// Package normalize turns arbitrary uploaded JSON test logs into canonical
// TestRecord values. It never fails: malformed input degrades to placeholder
// records and the degradation is reported through the diagnostics list.
package normalize

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mesdash/internal/models"
)

// Ordered alias lists per logical field. First non-empty match wins.
// Production stations emit a mix of English, camel-case and Chinese headers.
var (
	serialAliases     = []string{"Serial Number", "SerialNumber", "Serial", "serial", "SN", "sn"}
	workOrderAliases  = []string{"Work Order", "WorkOrder", "workOrder", "MO", "工单", "工单号", "工單"}
	stationAliases    = []string{"Station", "station", "Test Station", "StationName", "工站", "站位"}
	modelAliases      = []string{"Model", "model", "Product", "ProductModel", "机型", "型号"}
	testTimeAliases   = []string{"Test Time", "TestTime", "testTime", "test_time", "Time", "DateTime", "测试时间"}
	testerAliases     = []string{"Tester", "tester", "Operator", "operator", "测试员"}
	partNumberAliases = []string{"Part Number", "PartNumber", "partNumber", "PN", "料号"}
)

// Item names that are really record metadata, not measurements.
var metadataItemNames = map[string]bool{
	"date":      true,
	"time":      true,
	"datetime":  true,
	"test time": true,
}

// testTimeRe captures year/month/day/hour/minute/second from the three
// accepted shapes: "2006-01-02 15:04:05", "2006/01/02 15:04:05" and the
// T-separated ISO variant.
var testTimeRe = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})[ T](\d{1,2}):(\d{1,2}):(\d{1,2})`)

const timeLayout = "2006-01-02 15:04:05"

// Result carries the normalized records together with the non-fatal
// degradation notes. Normalization never fails outright; Placeholders
// counts the records that had to be synthesized rather than extracted.
type Result struct {
	Records      []models.TestRecord
	Diagnostics  []models.Diagnostic
	Placeholders int
}

// Normalize converts raw file content into one or more canonical records.
// Every input yields at least one record; parse failures produce a
// placeholder named after the file so a batch import never aborts.
func Normalize(raw []byte, fileName string) Result {
	var res Result

	docs, repaired, err := parseDocuments(raw)
	if err != nil {
		res.Records = []models.TestRecord{placeholderRecord(fileName)}
		res.Placeholders = 1
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			File:    fileName,
			Message: fmt.Sprintf("unparseable JSON, placeholder record created: %v", err),
		})
		return res
	}
	if repaired {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{File: fileName, Message: "JSON repaired (trailing commas / quote style)"})
	}

	res.Records = make([]models.TestRecord, 0, len(docs))
	for _, doc := range docs {
		rec, synthesized, diags := normalizeDocument(doc, fileName)
		res.Records = append(res.Records, rec)
		res.Diagnostics = append(res.Diagnostics, diags...)
		if synthesized {
			res.Placeholders++
		}
	}
	return res
}

// parseDocuments parses raw bytes into an array of documents, wrapping a
// single object, and applying the repair pass when strict parsing fails.
func parseDocuments(raw []byte) (docs []interface{}, repaired bool, err error) {
	var v interface{}
	if err = json.Unmarshal(raw, &v); err != nil {
		fixed := repairJSON(string(raw))
		if err2 := json.Unmarshal([]byte(fixed), &v); err2 != nil {
			return nil, false, err
		}
		repaired = true
	}
	if arr, ok := v.([]interface{}); ok {
		if len(arr) == 0 {
			return []interface{}{nil}, repaired, nil
		}
		return arr, repaired, nil
	}
	return []interface{}{v}, repaired, nil
}

var (
	trailingCommaObjRe = regexp.MustCompile(`,\s*}`)
	trailingCommaArrRe = regexp.MustCompile(`,\s*]`)
)

// repairJSON is the best-effort recovery pass: strip trailing commas and
// convert single quotes to double quotes.
func repairJSON(s string) string {
	s = trailingCommaObjRe.ReplaceAllString(s, "}")
	s = trailingCommaArrRe.ReplaceAllString(s, "]")
	return strings.ReplaceAll(s, "'", `"`)
}

func normalizeDocument(doc interface{}, fileName string) (models.TestRecord, bool, []models.Diagnostic) {
	var diags []models.Diagnostic
	synthesized := false

	obj, _ := doc.(map[string]interface{})

	rec := models.TestRecord{
		SerialNumber: firstAlias(obj, serialAliases),
		WorkOrder:    firstAlias(obj, workOrderAliases),
		Station:      firstAlias(obj, stationAliases),
		Model:        firstAlias(obj, modelAliases),
		TestTime:     firstAlias(obj, testTimeAliases),
		Tester:       firstAlias(obj, testerAliases),
		PartNumber:   firstAlias(obj, partNumberAliases),
	}
	rec.Date, rec.Time = ParseTestTime(rec.TestTime)

	if !IsValidMESData(obj) {
		applyFallback(&rec, obj)
		synthesized = true
		diags = append(diags, models.Diagnostic{
			File:    fileName,
			Message: fmt.Sprintf("no serial/time/station fields, synthesized record for %q", rec.SerialNumber),
		})
	}

	rec.Items = extractItems(obj)
	rec.Result = deriveResult(rec.Items)

	if rec.Station == "" {
		rec.Station = "Unknown"
	}
	if rec.Model == "" {
		rec.Model = "Unknown"
	}
	return rec, synthesized, diags
}

// IsValidMESData reports whether the document carries at least one of the
// identifying fields. Advisory only: it decides whether the fallback ladder
// applies, it never discards data.
func IsValidMESData(obj map[string]interface{}) bool {
	return firstAlias(obj, serialAliases) != "" ||
		firstAlias(obj, testTimeAliases) != "" ||
		firstAlias(obj, stationAliases) != ""
}

// applyFallback synthesizes identity for a document missing serial, test
// time and station. A Result array with a named first entry lends its name
// as the serial; otherwise everything is "Unknown". Test time becomes now.
func applyFallback(rec *models.TestRecord, obj map[string]interface{}) {
	rec.SerialNumber = "Unknown"
	if arr, ok := obj["Result"].([]interface{}); ok && len(arr) > 0 {
		if first, ok := arr[0].(map[string]interface{}); ok {
			if name := stringValue(first["Name"]); name != "" {
				rec.SerialNumber = name
			}
		}
	}
	now := time.Now()
	rec.TestTime = now.Format(timeLayout)
	rec.Date, rec.Time = ParseTestTime(rec.TestTime)
}

// placeholderRecord stands in for a file whose JSON could not be parsed
// even after repair. The single FAIL item keeps the result derivation
// invariant intact.
func placeholderRecord(fileName string) models.TestRecord {
	now := time.Now()
	stem := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	if stem == "" {
		stem = "Unknown"
	}
	ts := now.Format(timeLayout)
	date, tm := ParseTestTime(ts)
	return models.TestRecord{
		SerialNumber: stem,
		Station:      "Unknown",
		Model:        "Unknown",
		Result:       models.ResultFail,
		TestTime:     ts,
		Date:         date,
		Time:         tm,
		Items: []models.TestItem{
			{Name: "Parse Error", Value: "invalid JSON", Result: models.ResultFail},
		},
	}
}

// ParseTestTime extracts a "YYYY-MM-DD" date and "HH:MM:SS" time from the
// accepted timestamp shapes. Any other shape yields empty strings; callers
// keep the raw value for display.
func ParseTestTime(s string) (date, clock string) {
	m := testTimeRe.FindStringSubmatch(s)
	if m == nil {
		return "", ""
	}
	date = fmt.Sprintf("%s-%s-%s", m[1], pad2(m[2]), pad2(m[3]))
	clock = fmt.Sprintf("%s:%s:%s", pad2(m[4]), pad2(m[5]), pad2(m[6]))
	return date, clock
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// extractItems collects measurements from an array-valued Items/items
// field. Date/time-like names are metadata and skipped; object values are
// flattened to JSON strings so every value is scalar at rest.
func extractItems(obj map[string]interface{}) []models.TestItem {
	var arr []interface{}
	for _, key := range []string{"Items", "items"} {
		if a, ok := obj[key].([]interface{}); ok {
			arr = a
			break
		}
	}
	items := make([]models.TestItem, 0, len(arr))
	for _, el := range arr {
		m, ok := el.(map[string]interface{})
		if !ok {
			continue
		}
		name := firstAlias(m, []string{"name", "Name", "item", "Item"})
		if metadataItemNames[strings.ToLower(strings.TrimSpace(name))] {
			continue
		}
		items = append(items, models.TestItem{
			Name:   name,
			Value:  stringifyValue(pick(m, "value", "Value")),
			Result: firstAlias(m, []string{"result", "Result"}),
		})
	}
	return items
}

// deriveResult implements the canonical invariant: FAIL if any item failed,
// PASS otherwise (including the empty item list).
func deriveResult(items []models.TestItem) string {
	for _, it := range items {
		if strings.EqualFold(it.Result, models.ResultFail) {
			return models.ResultFail
		}
	}
	return models.ResultPass
}

func pick(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstAlias(obj map[string]interface{}, aliases []string) string {
	for _, a := range aliases {
		if s := stringValue(obj[a]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// stringifyValue renders any item value as a string. Objects and arrays are
// JSON-serialized with sorted keys (encoding/json sorts map keys already).
func stringifyValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
