package history

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore keeps cursors and processed ids in Postgres so multiple
// instances can share sync state. Cursor writes are clamped with GREATEST so
// a racing instance can never move a position backwards.
//
// The Store contract has no error returns; database failures are logged and
// degrade to "unknown" (absent cursor, unprocessed message). Both outcomes
// are safe: they only cause redundant, idempotent work.
type PostgresStore struct {
	db *sqlx.DB
}

const schema = `
create table if not exists account_cursors (
	account   text primary key,
	position  bigint not null
);
create table if not exists processed_messages (
	account    text not null,
	message_id text not null,
	primary key (account, message_id)
);`

// NewPostgresStore connects to the database and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to run schema migration: %w", err)
	}
	slog.Info("Successfully connected to cursor database")
	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Cursor(account string) (uint64, bool) {
	mustAccount(account)
	var position int64
	err := s.db.Get(&position, `select position from account_cursors where account = $1`, account)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Error("Failed to read cursor", "account", account, "error", err)
		}
		return 0, false
	}
	return uint64(position), true
}

func (s *PostgresStore) SetCursor(account string, position uint64) {
	mustAccount(account)
	upsert := `insert into account_cursors (account, position)
		values ($1, $2)
		on conflict (account) do update
		set position = greatest(account_cursors.position, excluded.position)`
	if _, err := s.db.Exec(upsert, account, int64(position)); err != nil {
		slog.Error("Failed to set cursor",
			"account", account,
			"position", position,
			"error", err)
	}
}

func (s *PostgresStore) IsProcessed(account, messageID string) bool {
	mustAccount(account)
	var count int
	err := s.db.Get(&count,
		`select count(*) from processed_messages where account = $1 and message_id = $2`,
		account, messageID)
	if err != nil {
		slog.Error("Failed to check processed message",
			"account", account,
			"message_id", messageID,
			"error", err)
		return false
	}
	return count > 0
}

func (s *PostgresStore) MarkProcessed(account, messageID string) {
	mustAccount(account)
	insert := `insert into processed_messages (account, message_id)
		values ($1, $2) on conflict do nothing`
	if _, err := s.db.Exec(insert, account, messageID); err != nil {
		slog.Error("Failed to mark message processed",
			"account", account,
			"message_id", messageID,
			"error", err)
	}
}
