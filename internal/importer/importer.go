// Package importer runs the batch import pipeline: log files first, so the
// correlation table is fully populated, then JSON files, normalized and
// persisted record by record. Files are processed strictly in sequence;
// concurrent imports are not guarded against.
package importer

import (
	"path/filepath"
	"strings"
	"time"

	"mesdash/internal/logfile"
	"mesdash/internal/models"
	"mesdash/internal/normalize"
	"mesdash/internal/store"
	"mesdash/internal/websocket"
)

// File is one uploaded file: raw UTF-8 content plus the original name.
// That is the entire contract with the caller.
type File struct {
	Name    string
	Content []byte
}

// Pipeline ties the import stages to their storage and notification
// dependencies. Both are injected; the pipeline owns no global state.
type Pipeline struct {
	Store *store.Engine
	Hub   *websocket.Hub
}

// New creates a pipeline around the given store and hub. Hub may be nil
// (no notifications, useful in tests).
func New(st *store.Engine, hub *websocket.Hub) *Pipeline {
	return &Pipeline{Store: st, Hub: hub}
}

// ImportBatch ingests a mixed batch of .json and .log files and returns a
// summary. It never fails the batch: every degradation lands in the
// summary's diagnostics instead. One records_imported event is broadcast
// per batch.
func (p *Pipeline) ImportBatch(files []File) models.ImportSummary {
	summary := models.ImportSummary{Diagnostics: []models.Diagnostic{}}

	// Phase 1: store every log file and build the correlation table.
	logIDs := map[string]string{} // correlation key -> stored log id
	for _, f := range files {
		if !isLogFile(f.Name) {
			continue
		}
		p.importLogFile(f, logIDs, &summary)
	}

	// Phase 2: normalize the JSON files and pair them against the table.
	var records []models.TestRecord
	for _, f := range files {
		if isLogFile(f.Name) {
			continue
		}
		res := normalize.Normalize(f.Content, f.Name)
		summary.Diagnostics = append(summary.Diagnostics, res.Diagnostics...)
		summary.Placeholders += res.Placeholders

		// Each record probes its own source filename against the
		// correlation table built in phase 1.
		if match, ok := logfile.Parse(f.Name); ok {
			if logID, found := logIDs[match.Key()]; found {
				for _, rec := range res.Records {
					summary.Paired++
					p.Store.PutLogMapping(models.LogMapping{
						RecordKey: recordKey(match, rec),
						Serial:    match.Serial,
						FileName:  f.Name,
						LogID:     logID,
					})
				}
			}
		}
		records = append(records, res.Records...)
	}

	p.Store.InsertTestRecords(records)
	summary.Imported = len(records)
	summary.Total = p.Store.CountTestRecords()

	if p.Hub != nil {
		p.Hub.DataChanged(websocket.EventRecordsImported, summary.Total)
	}
	return summary
}

// ClearAll wipes every imported record, log and mapping, and broadcasts
// one data_cleared event.
func (p *Pipeline) ClearAll() error {
	err := p.Store.ClearAll()
	if p.Hub != nil {
		p.Hub.DataChanged(websocket.EventDataCleared, p.Store.CountTestRecords())
	}
	return err
}

func (p *Pipeline) importLogFile(f File, logIDs map[string]string, summary *models.ImportSummary) {
	lf := models.LogFile{
		FileName:  f.Name,
		Content:   string(f.Content),
		Size:      len(f.Content),
		Timestamp: time.Now(),
	}
	match, ok := logfile.Parse(f.Name)
	if ok {
		lf.Serial = match.Serial
		if !match.Timestamp.IsZero() {
			lf.Timestamp = match.Timestamp
		}
	} else {
		// No correlatable identity in the name; keep the blob anyway.
		lf.Serial = strings.TrimSuffix(filepath.Base(f.Name), filepath.Ext(f.Name))
		summary.Diagnostics = append(summary.Diagnostics, models.Diagnostic{
			File:    f.Name,
			Message: "log filename does not match the date-time-serial grammar, stored uncorrelated",
		})
	}
	id, err := p.Store.InsertLogFile(lf)
	if err != nil {
		summary.Diagnostics = append(summary.Diagnostics, models.Diagnostic{File: f.Name, Message: err.Error()})
		return
	}
	summary.LogFiles++
	if ok {
		logIDs[match.Key()] = id
	}
}

// recordKey is the composite LogMapping primary key:
// serial_timestamp_station.
func recordKey(m logfile.Match, rec models.TestRecord) string {
	return m.Serial + "_" + m.Date + m.Time + "_" + rec.Station
}

func isLogFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".log")
}
