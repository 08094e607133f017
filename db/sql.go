package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"

	"propcast/config"
)

// SQLSink writes prediction logs through database/sql.
// Each write acquires its own connection and releases it before returning.
type SQLSink struct {
	db          *sql.DB
	driver      string
	table       string
	insertQuery string
}

// OpenSQL opens the pool for a mysql, postgres or sqlite3 sink.
func OpenSQL(cfg config.SinkConfig) (*SQLSink, error) {
	dsn, err := dataSourceName(cfg)
	if err != nil {
		return nil, err
	}
	database, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite3" {
		database.SetMaxOpenConns(1)
	} else {
		database.SetMaxOpenConns(10)
		database.SetMaxIdleConns(5)
		database.SetConnMaxLifetime(time.Hour)
	}
	return NewSQLSink(database, cfg.Driver, cfg.Table), nil
}

// NewSQLSink wraps an existing pool.
func NewSQLSink(database *sql.DB, driver, table string) *SQLSink {
	return &SQLSink{
		db:          database,
		driver:      driver,
		table:       table,
		insertQuery: insertQuery(driver, table),
	}
}

func dataSourceName(cfg config.SinkConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	switch cfg.Driver {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = cfg.Database
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	case "postgres":
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Path:     "/" + cfg.Database,
			RawQuery: "sslmode=disable",
		}
		return u.String(), nil
	case "sqlite3":
		if cfg.Database == "" {
			return "", errors.New("sqlite3 sink needs dsn or database path")
		}
		return cfg.Database + "?_busy_timeout=5000", nil
	}
	return "", fmt.Errorf("unsupported sql driver %q", cfg.Driver)
}

func insertQuery(driver, table string) string {
	values := "?, ?, ?, ?, ?, ?, ?, ?"
	if driver == "postgres" {
		values = "$1, $2, $3, $4, $5, $6, $7, $8"
	}
	return `INSERT INTO ` + table + ` (
            blades, diameter, pitch, advance_ratio,
            thrust_coefficient, power_coefficient, efficiency, drone_type
        ) VALUES (` + values + `)`
}

// SavePrediction inserts entry in its own transaction. The connection is
// returned to the pool on every path; nothing is committed on failure.
func (s *SQLSink) SavePrediction(ctx context.Context, entry PredictionLog) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		err = multierr.Append(err, conn.Close())
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = multierr.Append(err, rbErr)
		}
	}()

	if _, err = tx.ExecContext(ctx, s.insertQuery,
		entry.Blades,
		entry.Diameter,
		entry.Pitch,
		entry.AdvanceRatio,
		entry.ThrustCoefficient,
		entry.PowerCoefficient,
		entry.Efficiency,
		entry.DroneType,
	); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns the newest logs first. It needs the id column Migrate creates.
func (s *SQLSink) Recent(ctx context.Context, limit int) ([]PredictionLog, error) {
	query := `SELECT blades, diameter, pitch, advance_ratio,
               thrust_coefficient, power_coefficient, efficiency, drone_type
        FROM ` + s.table + `
        ORDER BY id DESC
        LIMIT ?`
	if s.driver == "postgres" {
		query = query[:len(query)-1] + "$1"
	}

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]PredictionLog, 0, limit)
	for rows.Next() {
		var l PredictionLog
		if err := rows.Scan(&l.Blades, &l.Diameter, &l.Pitch, &l.AdvanceRatio,
			&l.ThrustCoefficient, &l.PowerCoefficient, &l.Efficiency, &l.DroneType); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Migrate creates the log table if it does not exist.
func (s *SQLSink) Migrate(ctx context.Context) error {
	var query string
	switch s.driver {
	case "mysql":
		query = `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            blades INT NOT NULL,
            diameter DOUBLE NOT NULL,
            pitch DOUBLE NOT NULL,
            advance_ratio DOUBLE NOT NULL,
            thrust_coefficient DOUBLE NOT NULL,
            power_coefficient DOUBLE NOT NULL,
            efficiency DOUBLE NOT NULL,
            drone_type VARCHAR(64) NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`
	case "postgres":
		query = `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
            id BIGSERIAL PRIMARY KEY,
            blades INTEGER NOT NULL,
            diameter DOUBLE PRECISION NOT NULL,
            pitch DOUBLE PRECISION NOT NULL,
            advance_ratio DOUBLE PRECISION NOT NULL,
            thrust_coefficient DOUBLE PRECISION NOT NULL,
            power_coefficient DOUBLE PRECISION NOT NULL,
            efficiency DOUBLE PRECISION NOT NULL,
            drone_type VARCHAR(64) NOT NULL,
            created_at TIMESTAMPTZ DEFAULT now()
        )`
	default:
		query = `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            blades INTEGER NOT NULL,
            diameter REAL NOT NULL,
            pitch REAL NOT NULL,
            advance_ratio REAL NOT NULL,
            thrust_coefficient REAL NOT NULL,
            power_coefficient REAL NOT NULL,
            efficiency REAL NOT NULL,
            drone_type TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`
	}
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLSink) Close() error {
	return s.db.Close()
}
