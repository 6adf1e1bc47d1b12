package normalize

import (
	"testing"

	"mesdash/internal/models"
)

func TestNormalizeTotality(t *testing.T) {
	inputs := map[string]string{
		"object":    `{"Serial Number":"CH001","Station":"ST1"}`,
		"array":     `[{"Serial Number":"CH001"},{"Serial Number":"CH002"}]`,
		"malformed": `{this is not json at all`,
		"empty":     `{}`,
		"null":      `null`,
	}
	for name, in := range inputs {
		res := Normalize([]byte(in), name+".json")
		if len(res.Records) == 0 {
			t.Errorf("%s: expected at least one record, got none", name)
		}
		for _, r := range res.Records {
			if r.Result != models.ResultPass && r.Result != models.ResultFail {
				t.Errorf("%s: result %q is not PASS/FAIL", name, r.Result)
			}
		}
	}
}

func TestNormalizeArrayYieldsOneRecordPerElement(t *testing.T) {
	res := Normalize([]byte(`[{"Serial Number":"A"},{"Serial Number":"B"},{"Serial Number":"C"}]`), "batch.json")
	if len(res.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(res.Records))
	}
	for i, want := range []string{"A", "B", "C"} {
		if res.Records[i].SerialNumber != want {
			t.Errorf("record %d: serial = %q, want %q", i, res.Records[i].SerialNumber, want)
		}
	}
}

func TestResultDerivation(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"one fail", `{"Serial Number":"X","Items":[{"name":"V","result":"PASS"},{"name":"C","result":"FAIL"}]}`, models.ResultFail},
		{"all pass", `{"Serial Number":"X","Items":[{"name":"V","result":"PASS"}]}`, models.ResultPass},
		{"no items", `{"Serial Number":"X"}`, models.ResultPass},
		{"empty items", `{"Serial Number":"X","Items":[]}`, models.ResultPass},
		{"lowercase fail", `{"Serial Number":"X","Items":[{"name":"V","result":"fail"}]}`, models.ResultFail},
		{"input result ignored", `{"Serial Number":"X","Result":"FAIL","Items":[{"name":"V","result":"PASS"}]}`, models.ResultPass},
	}
	for _, tc := range cases {
		res := Normalize([]byte(tc.input), "t.json")
		if got := res.Records[0].Result; got != tc.want {
			t.Errorf("%s: result = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestAliasExtraction(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{`{"Serial Number":"CH123"}`, "CH123"},
		{`{"SerialNumber":"CH124"}`, "CH124"},
		{`{"Serial":"CH125"}`, "CH125"},
		{`{"serial":"CH126"}`, "CH126"},
		{`{"SN":"CH127"}`, "CH127"},
		// First non-empty alias wins.
		{`{"Serial Number":"FIRST","Serial":"SECOND"}`, "FIRST"},
		{`{"Serial Number":"","Serial":"SECOND"}`, "SECOND"},
	}
	for _, tc := range cases {
		res := Normalize([]byte(tc.input), "t.json")
		if got := res.Records[0].SerialNumber; got != tc.want {
			t.Errorf("input %s: serial = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestExtractionDeterminism(t *testing.T) {
	in := []byte(`{"Serial Number":"CH123","Work Order":"WO-9","Station":"ST1"}`)
	first := Normalize(in, "t.json").Records[0]
	second := Normalize(in, "t.json").Records[0]
	if first.SerialNumber != second.SerialNumber || first.WorkOrder != second.WorkOrder || first.Station != second.Station {
		t.Errorf("normalizing twice diverged: %+v vs %+v", first, second)
	}
}

func TestWorkOrderChineseAlias(t *testing.T) {
	res := Normalize([]byte(`{"Serial Number":"X","工单":"WO-CN-1"}`), "t.json")
	if got := res.Records[0].WorkOrder; got != "WO-CN-1" {
		t.Errorf("work order = %q, want WO-CN-1", got)
	}
}

func TestDateRoundTrip(t *testing.T) {
	res := Normalize([]byte(`{"Serial Number":"X","Test Time":"2025-09-20 14:30:00"}`), "t.json")
	r := res.Records[0]
	if r.Date != "2025-09-20" || r.Time != "14:30:00" {
		t.Errorf("date/time = %q/%q, want 2025-09-20/14:30:00", r.Date, r.Time)
	}
	if r.TestTime != "2025-09-20 14:30:00" {
		t.Errorf("raw test time not preserved: %q", r.TestTime)
	}
}

func TestDateVariants(t *testing.T) {
	cases := []struct {
		in       string
		date, tm string
	}{
		{"2025/09/20 14:30:00", "2025-09-20", "14:30:00"},
		{"2025-09-20T14:30:00", "2025-09-20", "14:30:00"},
		{"2025-9-2 4:3:0", "2025-09-02", "04:03:00"},
	}
	for _, tc := range cases {
		date, tm := ParseTestTime(tc.in)
		if date != tc.date || tm != tc.tm {
			t.Errorf("ParseTestTime(%q) = %q/%q, want %q/%q", tc.in, date, tm, tc.date, tc.tm)
		}
	}
}

func TestUnparseableDateKeepsRaw(t *testing.T) {
	res := Normalize([]byte(`{"Serial Number":"X","Test Time":"last tuesday"}`), "t.json")
	r := res.Records[0]
	if r.Date != "" || r.Time != "" {
		t.Errorf("expected empty date/time, got %q/%q", r.Date, r.Time)
	}
	if r.TestTime != "last tuesday" {
		t.Errorf("raw value lost: %q", r.TestTime)
	}
}

func TestMetadataItemsExcluded(t *testing.T) {
	in := `{"Serial Number":"X","Items":[
		{"name":"Voltage","value":"3.3","result":"PASS"},
		{"name":"Date","value":"2025-09-20","result":"PASS"},
		{"name":"Test Time","value":"14:30:00","result":"PASS"},
		{"name":"datetime","value":"x","result":"PASS"}
	]}`
	res := Normalize([]byte(in), "t.json")
	items := res.Records[0].Items
	if len(items) != 1 || items[0].Name != "Voltage" {
		t.Errorf("expected only Voltage to survive, got %+v", items)
	}
}

func TestObjectItemValuesStringified(t *testing.T) {
	in := `{"Serial Number":"X","Items":[{"name":"Cal","value":{"offset":1.5,"gain":2},"result":"PASS"}]}`
	res := Normalize([]byte(in), "t.json")
	got := res.Records[0].Items[0].Value
	if got != `{"gain":2,"offset":1.5}` {
		t.Errorf("object value not JSON-stringified: %q", got)
	}
}

func TestRepairTrailingCommaAndQuotes(t *testing.T) {
	in := `{'Serial Number':'CH900','Station':'ST2',}`
	res := Normalize([]byte(in), "t.json")
	r := res.Records[0]
	if r.SerialNumber != "CH900" || r.Station != "ST2" {
		t.Fatalf("repair pass failed: %+v", r)
	}
	if len(res.Diagnostics) == 0 {
		t.Error("expected a repair diagnostic")
	}
	if res.Placeholders != 0 {
		t.Errorf("repaired input should not count as placeholder, got %d", res.Placeholders)
	}
}

func TestUnrepairableYieldsPlaceholder(t *testing.T) {
	res := Normalize([]byte(`{{{{nope`), "ST1-batch7.json")
	if len(res.Records) != 1 {
		t.Fatalf("expected exactly one placeholder record, got %d", len(res.Records))
	}
	r := res.Records[0]
	if r.SerialNumber != "ST1-batch7" {
		t.Errorf("placeholder serial = %q, want filename stem", r.SerialNumber)
	}
	if r.Result != models.ResultFail {
		t.Errorf("placeholder result = %q, want FAIL", r.Result)
	}
	if r.Station != "Unknown" || r.Model != "Unknown" {
		t.Errorf("placeholder station/model = %q/%q, want Unknown", r.Station, r.Model)
	}
	if res.Placeholders != 1 {
		t.Errorf("placeholders = %d, want 1", res.Placeholders)
	}
}

func TestFallbackLadderResultArrayName(t *testing.T) {
	res := Normalize([]byte(`{"Result":[{"Name":"DEV-42","Value":1}]}`), "t.json")
	r := res.Records[0]
	if r.SerialNumber != "DEV-42" {
		t.Errorf("serial = %q, want DEV-42 from Result[0].Name", r.SerialNumber)
	}
	if r.TestTime == "" || r.Date == "" {
		t.Error("synthesized record should carry a current timestamp")
	}
}

func TestFallbackLadderFullyUnknown(t *testing.T) {
	res := Normalize([]byte(`{"some":"noise"}`), "t.json")
	r := res.Records[0]
	if r.SerialNumber != "Unknown" {
		t.Errorf("serial = %q, want Unknown", r.SerialNumber)
	}
	if r.Station != "Unknown" || r.Model != "Unknown" {
		t.Errorf("station/model = %q/%q, want Unknown", r.Station, r.Model)
	}
	if res.Placeholders != 1 {
		t.Errorf("placeholders = %d, want 1", res.Placeholders)
	}
}

func TestIsValidMESData(t *testing.T) {
	valid := map[string]interface{}{"Serial Number": "X"}
	if !IsValidMESData(valid) {
		t.Error("document with serial should be valid")
	}
	invalid := map[string]interface{}{"foo": "bar"}
	if IsValidMESData(invalid) {
		t.Error("document with no identifying fields should be invalid")
	}
}
