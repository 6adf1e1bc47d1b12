// Package store is the durable home of imported test data: three SQLite
// tables (test_records, log_files, log_mappings) plus a size-capped
// flat-file fallback used when the primary store is unavailable. Writes
// degrade silently to the fallback; reads prefer the primary and consult
// the fallback only when the primary yields nothing. The two stores are
// never merged.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"mesdash/internal/models"

	_ "modernc.org/sqlite"
)

// Open opens the SQLite database with WAL and busy-timeout configured.
func Open(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=1")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	// Some drivers don't parse connection string params correctly.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=10000"); err != nil {
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	return db, nil
}

// Engine wraps the primary store and its fallback. It is constructed once
// at application start and passed to the pipeline explicitly; there is no
// package-level handle.
type Engine struct {
	db       *sql.DB
	fallback *Fallback
}

// NewEngine creates the engine and runs migrations on the primary store.
// A migration failure is not fatal: the engine stays usable through the
// fallback, matching the import pipeline's degrade-don't-fail posture.
func NewEngine(db *sql.DB, fallbackDir string) *Engine {
	e := &Engine{db: db, fallback: NewFallback(fallbackDir)}
	if err := e.migrate(); err != nil {
		log.Printf("store: migration failed, fallback only: %v", err)
	}
	return e
}

func (e *Engine) migrate() error {
	if e.db == nil {
		return fmt.Errorf("no database handle")
	}
	tables := []string{
		`CREATE TABLE IF NOT EXISTS test_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			serial_number TEXT NOT NULL DEFAULT '',
			work_order TEXT DEFAULT '',
			station TEXT DEFAULT '',
			model TEXT DEFAULT '',
			result TEXT NOT NULL CHECK(result IN ('PASS','FAIL')),
			test_time TEXT DEFAULT '',
			test_date TEXT DEFAULT '',
			test_clock TEXT DEFAULT '',
			tester TEXT DEFAULT '',
			part_number TEXT DEFAULT '',
			items TEXT DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS log_files (
			id TEXT PRIMARY KEY,
			serial TEXT DEFAULT '',
			file_name TEXT DEFAULT '',
			content TEXT DEFAULT '',
			timestamp_ms INTEGER DEFAULT 0,
			size INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS log_mappings (
			record_key TEXT PRIMARY KEY,
			serial TEXT DEFAULT '',
			file_name TEXT DEFAULT '',
			log_id TEXT DEFAULT ''
		)`,
	}
	for _, t := range tables {
		if _, err := e.db.Exec(t); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}
	return nil
}

// Fallback keys. The record and mapping collections serialize wholesale
// under one key each; log files get one key per blob.
const (
	fbRecords  = "test_records"
	fbMappings = "log_mappings"
	fbLogFile  = "logfile_" // + id
)

// InsertTestRecords persists a batch of records. A primary failure rejects
// the whole batch and reroutes it to the fallback; the error is logged, not
// returned, so a batch import always completes.
func (e *Engine) InsertTestRecords(records []models.TestRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := e.insertRecordsPrimary(records); err != nil {
		log.Printf("store: primary insert failed (%d records), using fallback: %v", len(records), err)
		e.appendRecordsFallback(records)
	}
	return nil
}

func (e *Engine) insertRecordsPrimary(records []models.TestRecord) error {
	if e.db == nil {
		return fmt.Errorf("no database handle")
	}
	tx, err := e.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`INSERT INTO test_records
		(serial_number,work_order,station,model,result,test_time,test_date,test_clock,tester,part_number,items)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range records {
		items, merr := json.Marshal(r.Items)
		if merr != nil {
			items = []byte("[]")
		}
		if _, err := stmt.Exec(r.SerialNumber, r.WorkOrder, r.Station, r.Model, r.Result,
			r.TestTime, r.Date, r.Time, r.Tester, r.PartNumber, string(items)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (e *Engine) appendRecordsFallback(records []models.TestRecord) {
	var existing []models.TestRecord
	e.fallback.Get(fbRecords, &existing)
	next := len(existing) + 1
	for i := range records {
		records[i].ID = next + i
	}
	e.fallback.Put(fbRecords, append(existing, records...))
}

// GetAllTestRecords returns every persisted record. The fallback is
// consulted only when the primary errors or holds zero rows.
func (e *Engine) GetAllTestRecords() ([]models.TestRecord, error) {
	records, err := e.recordsPrimary()
	if err != nil {
		log.Printf("store: primary read failed, using fallback: %v", err)
		records = nil
	}
	if len(records) == 0 {
		var fb []models.TestRecord
		e.fallback.Get(fbRecords, &fb)
		return fb, nil
	}
	return records, nil
}

func (e *Engine) recordsPrimary() ([]models.TestRecord, error) {
	if e.db == nil {
		return nil, fmt.Errorf("no database handle")
	}
	rows, err := e.db.Query(`SELECT id,serial_number,work_order,station,model,result,
		test_time,test_date,test_clock,tester,part_number,items FROM test_records ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []models.TestRecord
	for rows.Next() {
		var r models.TestRecord
		var items string
		if err := rows.Scan(&r.ID, &r.SerialNumber, &r.WorkOrder, &r.Station, &r.Model, &r.Result,
			&r.TestTime, &r.Date, &r.Time, &r.Tester, &r.PartNumber, &items); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(items), &r.Items); err != nil {
			r.Items = nil
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// InsertLogFile stores a raw log blob and returns its synthesized id
// (serial_epochMillis). The id format is part of the persisted layout and
// must not change.
func (e *Engine) InsertLogFile(lf models.LogFile) (string, error) {
	if lf.ID == "" {
		lf.ID = lf.Serial + "_" + strconv.FormatInt(lf.Timestamp.UnixMilli(), 10)
	}
	if lf.Size == 0 {
		lf.Size = len(lf.Content)
	}
	if e.db != nil {
		_, err := e.db.Exec(`INSERT OR REPLACE INTO log_files (id,serial,file_name,content,timestamp_ms,size) VALUES (?,?,?,?,?,?)`,
			lf.ID, lf.Serial, lf.FileName, lf.Content, lf.Timestamp.UnixMilli(), lf.Size)
		if err == nil {
			return lf.ID, nil
		}
		log.Printf("store: primary log insert failed, using fallback: %v", err)
	}
	e.fallback.Put(fbLogFile+lf.ID, lf)
	return lf.ID, nil
}

// GetLogFile looks up a stored log blob by id.
func (e *Engine) GetLogFile(id string) (models.LogFile, bool) {
	if e.db != nil {
		var lf models.LogFile
		var ms int64
		err := e.db.QueryRow(`SELECT id,serial,file_name,content,timestamp_ms,size FROM log_files WHERE id=?`, id).
			Scan(&lf.ID, &lf.Serial, &lf.FileName, &lf.Content, &ms, &lf.Size)
		if err == nil {
			lf.Timestamp = time.UnixMilli(ms)
			return lf, true
		}
		if err != sql.ErrNoRows {
			log.Printf("store: log read failed: %v", err)
		}
	}
	var lf models.LogFile
	if e.fallback.Get(fbLogFile+id, &lf) {
		return lf, true
	}
	return models.LogFile{}, false
}

// PutLogMapping upserts a correlation record. Re-importing the same
// record key overwrites rather than erroring.
func (e *Engine) PutLogMapping(m models.LogMapping) error {
	if e.db != nil {
		_, err := e.db.Exec(`INSERT OR REPLACE INTO log_mappings (record_key,serial,file_name,log_id) VALUES (?,?,?,?)`,
			m.RecordKey, m.Serial, m.FileName, m.LogID)
		if err == nil {
			return nil
		}
		log.Printf("store: primary mapping insert failed, using fallback: %v", err)
	}
	mappings := map[string]models.LogMapping{}
	e.fallback.Get(fbMappings, &mappings)
	mappings[m.RecordKey] = m
	e.fallback.Put(fbMappings, mappings)
	return nil
}

// GetLogMapping looks up the mapping for a composite record key.
func (e *Engine) GetLogMapping(key string) (models.LogMapping, bool) {
	if e.db != nil {
		var m models.LogMapping
		err := e.db.QueryRow(`SELECT record_key,serial,file_name,log_id FROM log_mappings WHERE record_key=?`, key).
			Scan(&m.RecordKey, &m.Serial, &m.FileName, &m.LogID)
		if err == nil {
			return m, true
		}
		if err != sql.ErrNoRows {
			log.Printf("store: mapping read failed: %v", err)
		}
	}
	mappings := map[string]models.LogMapping{}
	if e.fallback.Get(fbMappings, &mappings) {
		if m, ok := mappings[key]; ok {
			return m, true
		}
	}
	return models.LogMapping{}, false
}

// GetAllLogMappings returns every stored mapping.
func (e *Engine) GetAllLogMappings() ([]models.LogMapping, error) {
	if e.db != nil {
		rows, err := e.db.Query(`SELECT record_key,serial,file_name,log_id FROM log_mappings`)
		if err == nil {
			defer rows.Close()
			var out []models.LogMapping
			for rows.Next() {
				var m models.LogMapping
				if err := rows.Scan(&m.RecordKey, &m.Serial, &m.FileName, &m.LogID); err != nil {
					return nil, err
				}
				out = append(out, m)
			}
			if len(out) > 0 {
				return out, rows.Err()
			}
		} else {
			log.Printf("store: mapping read failed, using fallback: %v", err)
		}
	}
	mappings := map[string]models.LogMapping{}
	e.fallback.Get(fbMappings, &mappings)
	out := make([]models.LogMapping, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, m)
	}
	return out, nil
}

// CountTestRecords returns the current record total, for the change
// notification after imports and clears.
func (e *Engine) CountTestRecords() int {
	if e.db != nil {
		var n int
		if err := e.db.QueryRow(`SELECT COUNT(*) FROM test_records`).Scan(&n); err == nil && n > 0 {
			return n
		}
	}
	var fb []models.TestRecord
	e.fallback.Get(fbRecords, &fb)
	return len(fb)
}

// ClearAll atomically empties all three tables and the fallback. This is
// the only destructive operation: there is no per-record delete.
func (e *Engine) ClearAll() error {
	if e.db != nil {
		tx, err := e.db.Begin()
		if err == nil {
			for _, table := range []string{"test_records", "log_files", "log_mappings"} {
				if _, err = tx.Exec("DELETE FROM " + table); err != nil {
					break
				}
			}
			if err == nil {
				err = tx.Commit()
			} else {
				tx.Rollback()
			}
		}
		if err != nil {
			log.Printf("store: clear failed on primary: %v", err)
		}
	}
	return e.fallback.Clear()
}

// EstimateUsage reports bytes used by the primary store. Purely advisory;
// zeros when unavailable.
func (e *Engine) EstimateUsage() models.StorageUsage {
	var usage models.StorageUsage
	if e.db == nil {
		return usage
	}
	var pageCount, pageSize int64
	if err := e.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return usage
	}
	if err := e.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return usage
	}
	usage.Quota = pageCount * pageSize
	usage.Used = usage.Quota
	var freelist int64
	if err := e.db.QueryRow("PRAGMA freelist_count").Scan(&freelist); err == nil {
		usage.Used -= freelist * pageSize
	}
	return usage
}
