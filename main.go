package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"mesdash/internal/config"
	"mesdash/internal/handlers/dashboard"
	"mesdash/internal/importer"
	"mesdash/internal/store"
	"mesdash/internal/websocket"
)

func main() {
	port := flag.Int("port", 9000, "HTTP port")
	dbPath := flag.String("db", "mesdash.db", "SQLite database path")
	fallbackDir := flag.String("fallback-dir", "fallback", "Directory for the fallback store")
	configPath := flag.String("config", "", "YAML file with station/model vocabularies")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = os.Getenv("MESDASH_CONFIG")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("config: %v, using defaults", err)
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		// Not fatal: the engine degrades to the fallback store.
		log.Printf("DB open failed, fallback store only: %v", err)
		db = nil
	}
	engine := store.NewEngine(db, *fallbackDir)

	hub := websocket.NewHub()
	pipeline := importer.New(engine, hub)
	h := &dashboard.Handler{Store: engine, Pipeline: pipeline, Cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/import", h.Import)
	mux.HandleFunc("GET /api/v1/records", h.Records)
	mux.HandleFunc("GET /api/v1/stats/kpi", h.KPI)
	mux.HandleFunc("GET /api/v1/stats/stations", h.Stations)
	mux.HandleFunc("GET /api/v1/stats/models", h.Models)
	mux.HandleFunc("GET /api/v1/stats/daily", h.Daily)
	mux.HandleFunc("GET /api/v1/stats/failures", h.Failures)
	mux.HandleFunc("GET /api/v1/stats/retests", h.Retests)
	mux.HandleFunc("GET /api/v1/stats/retest-groups", h.RetestGroups)
	mux.HandleFunc("GET /api/v1/logs", h.Log)
	mux.HandleFunc("GET /api/v1/export", h.Export)
	mux.HandleFunc("GET /api/v1/storage", h.Usage)
	mux.HandleFunc("POST /api/v1/clear", h.Clear)
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.Handle(hub, w, r)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mesdash listening on %s (%d stations, %d models configured)",
		addr, len(cfg.Stations), len(cfg.Models))
	log.Fatal(http.ListenAndServe(addr, logging(mux)))
}
