package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"nia-backend/internal/models"
)

type ClickHouseDB struct {
	conn   driver.Conn
	logger *zap.SugaredLogger
}

// Session describes one acquisition run
type Session struct {
	SessionID  string
	StartedAt  time.Time
	Transport  string
	BandTable  string
	SampleRate float64
	Device     models.DeviceDescriptor
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(ctx context.Context, addr, database, username, password string, logger *zap.SugaredLogger) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.Infof("Connected to ClickHouse at %s", addr)

	db := &ClickHouseDB{conn: conn, logger: logger}

	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	db.logger.Info("Database schema initialized successfully")
	return nil
}

// SaveSession registers an acquisition session
func (db *ClickHouseDB) SaveSession(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO eeg_sessions (session_id, started_at, transport, band_table, sample_rate, vendor_id, product_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		s.SessionID,
		s.StartedAt,
		s.Transport,
		s.BandTable,
		s.SampleRate,
		s.Device.VendorID,
		s.Device.ProductID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// SaveCycle saves one processing cycle
func (db *ClickHouseDB) SaveCycle(ctx context.Context, rec *models.CycleRecord) error {
	err := db.conn.Exec(ctx, insertCycleSQL, cycleArgs(rec)...)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}
	return nil
}

const insertCycleSQL = `
	INSERT INTO eeg_cycles (timestamp, session_id, sample_count, eeg_mean,
		low_alpha, med_alpha, high_alpha, low_beta, med_beta, high_beta,
		delta, theta, alpha, beta, gamma, brain_state,
		chakra_r, chakra_g, chakra_b, activity_radius)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// cycleArgs flattens a record in eeg_cycles column order
func cycleArgs(rec *models.CycleRecord) []interface{} {
	f := rec.Fingers
	return []interface{}{
		rec.Timestamp,
		rec.SessionID,
		uint32(rec.SampleCount),
		rec.EEGMean,
		f[0], f[1], f[2], f[3], f[4], f[5],
		rec.Bands.Delta,
		rec.Bands.Theta,
		rec.Bands.Alpha,
		rec.Bands.Beta,
		rec.Bands.Gamma,
		rec.BrainState,
		rec.ChakraColor[0],
		rec.ChakraColor[1],
		rec.ChakraColor[2],
		rec.ActivityRadius,
	}
}

// StateCount is the number of cycles spent in one brain state
type StateCount struct {
	BrainState string `json:"brain_state"`
	Cycles     uint64 `json:"cycles"`
}

// StateHistogram returns how many cycles of a session fell in each state
func (db *ClickHouseDB) StateHistogram(ctx context.Context, sessionID string) ([]StateCount, error) {
	query := `
		SELECT brain_state, count() AS cycles
		FROM eeg_cycles
		WHERE session_id = ?
		GROUP BY brain_state
		ORDER BY cycles DESC
	`

	rows, err := db.conn.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query state histogram: %w", err)
	}
	defer rows.Close()

	var out []StateCount
	for rows.Next() {
		var sc StateCount
		if err := rows.Scan(&sc.BrainState, &sc.Cycles); err != nil {
			return nil, fmt.Errorf("failed to scan state histogram: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		db.logger.Info("ClickHouse connection closed")
	}
	return nil
}
