package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/christoff-linde/MonitoringESP/data"
	_ "github.com/lib/pq"

	logger "github.com/sirupsen/logrus"
)

// collector is the receiving half of the node's upload interface: it accepts
// DataEntries posts and stores them in Postgres. Runs on the LAN host the
// nodes are pointed at.

const schema = `
CREATE TABLE IF NOT EXISTS data_entries (
	id          SERIAL PRIMARY KEY,
	device      TEXT NOT NULL DEFAULT '',
	ts          BIGINT NOT NULL,
	humidity    DOUBLE PRECISION NOT NULL,
	temperature DOUBLE PRECISION NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type collector struct {
	db *sql.DB
}

func main() {
	addr := flag.String("addr", ":5000", "listen address")
	flag.Parse()

	dsn, ok := os.LookupEnv("DATABASE_URL")
	if !ok {
		logger.Error("DATABASE_URL must be set")
		logger.Exit(1)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Errorf("Failed to open db [%v]", err)
		logger.Exit(1)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		logger.Errorf("Failed to create table [%v]", err)
		logger.Exit(1)
	}

	c := &collector{db: db}

	http.HandleFunc("/api/DataEntries", c.handleEntry)
	http.HandleFunc("/api/DataEntries/list", c.handleEntryList)

	logger.Infof("Collector listening on [%v]", *addr)
	logger.Fatal(http.ListenAndServe(*addr, nil))
}

func (c *collector) handleEntry(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var reading data.Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		logger.Warnf("Bad entry [%v]", err)
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	c.insert(rw, r, []data.Reading{reading})
}

func (c *collector) handleEntryList(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var readings []data.Reading
	if err := json.NewDecoder(r.Body).Decode(&readings); err != nil {
		logger.Warnf("Bad entry list [%v]", err)
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	c.insert(rw, r, readings)
}

func (c *collector) insert(rw http.ResponseWriter, r *http.Request, readings []data.Reading) {
	device := r.URL.Query().Get("device")

	ctx, cancel := context.WithTimeout(r.Context(), time.Second*10)
	defer cancel()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Errorf("Failed to begin tx [%v]", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	for _, reading := range readings {
		if !reading.Valid() {
			logger.Warnf("Rejecting invalid reading [%v]", reading)
			http.Error(rw, "invalid reading", http.StatusBadRequest)
			return
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO data_entries (device, ts, humidity, temperature) VALUES ($1, $2, $3, $4)`,
			device, reading.Timestamp, reading.Humidity, reading.Temperature)
		if err != nil {
			logger.Errorf("Failed to insert reading [%v]", err)
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		logger.Errorf("Failed to commit [%v]", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	logger.Infof("Stored %v readings from [%v]", len(readings), device)
	rw.WriteHeader(http.StatusCreated)
}
