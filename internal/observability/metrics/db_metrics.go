package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "open_custody_records",
			Help: "Instruments currently held by employees",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM custody_records WHERE active AND end_at IS NULL")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "instruments_at_lab",
			Help: "Instruments with a shipment awaiting receipt",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(DISTINCT instrument_id) FROM status_events WHERE kind = 'sent_to_lab' AND received_at IS NULL")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "controlled_instruments",
			Help: "Active controlled instruments under compliance",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM instruments WHERE controlled AND status = 'active'")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
