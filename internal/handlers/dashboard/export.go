package dashboard

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"

	"mesdash/internal/stats"
)

// Export handles GET /api/v1/export?format=xlsx: the filtered record set
// plus the failure-reason ranking as a two-sheet workbook.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" {
		http.Error(w, "unsupported export format", 400)
		return
	}

	records := h.filteredRecords(r)

	recordRows := make([][]string, 0, len(records))
	for _, rec := range records {
		itemNames := make([]string, 0, len(rec.Items))
		for _, it := range rec.Items {
			itemNames = append(itemNames, it.Name)
		}
		recordRows = append(recordRows, []string{
			rec.SerialNumber, rec.WorkOrder, rec.Station, rec.Model,
			rec.Result, rec.TestTime, rec.Tester, rec.PartNumber,
			strings.Join(itemNames, ", "),
		})
	}

	reasons := stats.ComputeFailureReasons(records)
	reasonRows := make([][]string, 0, len(reasons))
	for _, fr := range reasons {
		reasonRows = append(reasonRows, []string{
			fr.Reason,
			fmt.Sprintf("%d", fr.Count),
			fmt.Sprintf("%d", fr.Total),
			fmt.Sprintf("%.1f", fr.FailureRate),
		})
	}

	writeWorkbook(w, []sheet{
		{
			name:    "Records",
			headers: []string{"Serial Number", "Work Order", "Station", "Model", "Result", "Test Time", "Tester", "Part Number", "Items"},
			rows:    recordRows,
		},
		{
			name:    "Failure Reasons",
			headers: []string{"Reason", "Failed", "Total", "Failure Rate %"},
			rows:    reasonRows,
		},
	})
}

type sheet struct {
	name    string
	headers []string
	rows    [][]string
}

func writeWorkbook(w http.ResponseWriter, sheets []sheet) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		http.Error(w, "Failed to create header style", 500)
		return
	}

	for si, s := range sheets {
		index, err := f.NewSheet(s.name)
		if err != nil {
			http.Error(w, "Failed to create Excel sheet", 500)
			return
		}
		if si == 0 {
			f.SetActiveSheet(index)
		}
		for i, header := range s.headers {
			cell := fmt.Sprintf("%s1", string(rune('A'+i)))
			f.SetCellValue(s.name, cell, header)
			f.SetCellStyle(s.name, cell, cell, headerStyle)
		}
		for rowIdx, row := range s.rows {
			for colIdx, value := range row {
				cell := fmt.Sprintf("%s%d", string(rune('A'+colIdx)), rowIdx+2)
				f.SetCellValue(s.name, cell, value)
			}
		}
		for i := range s.headers {
			col := string(rune('A' + i))
			f.SetColWidth(s.name, col, col, 15)
		}
	}
	f.DeleteSheet("Sheet1")

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="test-records.xlsx"`)
	if err := f.Write(w); err != nil {
		// Headers are already sent at this point; just note it.
		log.Printf("export: write workbook: %v", err)
	}
}
