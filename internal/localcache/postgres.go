package localcache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PostgresBackend stores each key as one JSONB row. It lets several kiosk
// sessions on one machine share a fallback cache.
type PostgresBackend struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewPostgresBackend(dsn string, logger *logrus.Logger) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	var pingErr error
	for i := 0; i < 5; i++ {
		if pingErr = db.Ping(); pingErr == nil {
			break
		}
		logger.WithField("attempt", i+1).Info("Waiting for cache database...")
		time.Sleep(time.Second)
	}
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("cache database not reachable: %w", pingErr)
	}

	b := &PostgresBackend{db: db, logger: logger}
	if err := b.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache tables: %w", err)
	}

	logger.Info("Cache database connection established")
	return b, nil
}

func (b *PostgresBackend) createTables() error {
	_, err := b.db.Exec(`CREATE TABLE IF NOT EXISTS local_cache (
		key VARCHAR(64) PRIMARY KEY,
		docs JSONB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	return err
}

func (b *PostgresBackend) Load(key string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRow(`SELECT docs FROM local_cache WHERE key = $1`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return data, err
}

func (b *PostgresBackend) Save(key string, data []byte) error {
	_, err := b.db.Exec(`
		INSERT INTO local_cache (key, docs, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET docs = EXCLUDED.docs, updated_at = EXCLUDED.updated_at
	`, key, string(data), time.Now().UTC())
	return err
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}
