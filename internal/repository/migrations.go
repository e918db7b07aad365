package repository

import (
	"database/sql"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

const migrationsTable = "ledger_migrations"

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_ledger",
			Up: []string{
				`CREATE TABLE campaigns (
					id               INTEGER PRIMARY KEY,
					owner            CHAR(42) NOT NULL,
					title            TEXT NOT NULL,
					description      TEXT NOT NULL,
					target_usd       NUMERIC NOT NULL,
					target_native    NUMERIC(78, 0) NOT NULL,
					deadline         TIMESTAMPTZ NOT NULL,
					amount_collected NUMERIC(78, 0) NOT NULL,
					total_withdrawn  NUMERIC(78, 0) NOT NULL,
					image            TEXT NOT NULL,
					deleted          BOOLEAN NOT NULL DEFAULT FALSE,
					created_at       TIMESTAMPTZ NOT NULL,
					updated_at       TIMESTAMPTZ
				);`,
				`CREATE TABLE donations (
					campaign_id INTEGER NOT NULL REFERENCES campaigns (id),
					position    INTEGER NOT NULL,
					donator     CHAR(42) NOT NULL,
					amount      NUMERIC(78, 0) NOT NULL,
					donated_at  TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (campaign_id, position)
				);`,
				`CREATE TABLE commission_account (
					id                 INTEGER PRIMARY KEY CHECK (id = 1),
					current_balance    NUMERIC(78, 0) NOT NULL,
					total_accumulated  NUMERIC(78, 0) NOT NULL,
					total_withdrawn    NUMERIC(78, 0) NOT NULL,
					last_withdrawal_at TIMESTAMPTZ
				);`,
				`CREATE TABLE ledger_journal (
					seq          BIGINT PRIMARY KEY,
					tx_id        UUID NOT NULL UNIQUE,
					command      TEXT NOT NULL,
					caller       CHAR(42) NOT NULL,
					committed_at TIMESTAMPTZ NOT NULL,
					events       BYTEA NOT NULL,
					prev_hash    CHAR(64) NOT NULL,
					hash         CHAR(64) NOT NULL
				);`,
			},
			Down: []string{
				`DROP TABLE ledger_journal;`,
				`DROP TABLE commission_account;`,
				`DROP TABLE donations;`,
				`DROP TABLE campaigns;`,
			},
		},
	},
}

// MigrationsUp applies every pending migration and returns how many ran.
func MigrationsUp(db *sql.DB) (int, error) {
	migrate.SetTable(migrationsTable)
	n, err := migrate.Exec(db, "postgres", migrations, migrate.Up)
	if err != nil {
		return n, fmt.Errorf("apply migrations: %w", err)
	}
	return n, nil
}

// MigrationsDown reverts every applied migration.
func MigrationsDown(db *sql.DB) (int, error) {
	migrate.SetTable(migrationsTable)
	n, err := migrate.Exec(db, "postgres", migrations, migrate.Down)
	if err != nil {
		return n, fmt.Errorf("revert migrations: %w", err)
	}
	return n, nil
}
