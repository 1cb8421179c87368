package database

// SQL schemas for the ClickHouse tables

const (
	// EEGCyclesTableSQL stores one row per processing cycle
	EEGCyclesTableSQL = `
		CREATE TABLE IF NOT EXISTS eeg_cycles (
			timestamp DateTime64(3),
			session_id String,
			sample_count UInt32,
			eeg_mean Float64,
			low_alpha Float64,
			med_alpha Float64,
			high_alpha Float64,
			low_beta Float64,
			med_beta Float64,
			high_beta Float64,
			delta Float64,
			theta Float64,
			alpha Float64,
			beta Float64,
			gamma Float64,
			brain_state LowCardinality(String),
			chakra_r Float64,
			chakra_g Float64,
			chakra_b Float64,
			activity_radius Float64
		) ENGINE = MergeTree()
		ORDER BY (session_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// EEGSessionsTableSQL registers each acquisition session
	EEGSessionsTableSQL = `
		CREATE TABLE IF NOT EXISTS eeg_sessions (
			session_id String,
			started_at DateTime64(3),
			transport String,
			band_table String,
			sample_rate Float64,
			vendor_id UInt16,
			product_id UInt16
		) ENGINE = ReplacingMergeTree(started_at)
		ORDER BY session_id
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		EEGCyclesTableSQL,
		EEGSessionsTableSQL,
	}
}
