package repos

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// OpenDB opens the replica database and ensures the item schema exists.
// The text index is created separately by ItemRepo.EnsureTextIndex.
func OpenDB(dsn string) (*sqlx.DB, error) {
	memory := isMemory(dsn)
	if !memory {
		dsn = withPragmas(dsn)
		log.Info().Str("dsn", dsn).Msg("opening sqlite replica store")
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
-- Items: the searchable replica. Timestamps are unix nanoseconds (UTC).
CREATE TABLE IF NOT EXISTS items(
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  make TEXT NOT NULL DEFAULT '',
  model TEXT NOT NULL DEFAULT '',
  color TEXT NOT NULL DEFAULT '',
  year INTEGER NOT NULL DEFAULT 0,
  mileage INTEGER NOT NULL DEFAULT 0,
  image_url TEXT NOT NULL DEFAULT '',
  reserve_price INTEGER NOT NULL DEFAULT 0,
  current_high_bid INTEGER NOT NULL DEFAULT 0,
  sold_amount INTEGER NOT NULL DEFAULT 0,
  seller TEXT NOT NULL DEFAULT '',
  winner TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  auction_end INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_auction_end ON items(auction_end);
CREATE INDEX IF NOT EXISTS idx_items_created_at  ON items(created_at);
CREATE INDEX IF NOT EXISTS idx_items_updated_at  ON items(updated_at);
CREATE INDEX IF NOT EXISTS idx_items_make        ON items(make);
CREATE INDEX IF NOT EXISTS idx_items_seller      ON items(seller);
CREATE INDEX IF NOT EXISTS idx_items_winner      ON items(winner);
`
	_, err := db.Exec(schema)
	return err
}
