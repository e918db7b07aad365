package repository

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/fundraise-backend/internal/model"
)

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	_, _ = MigrationsDown(db.DB)
	_, err = MigrationsUp(db.DB)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = MigrationsDown(db.DB)
		db.Close()
	})
	return NewPostgresStore(db, zerolog.Nop())
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	uow := Begin(EmptySnapshot())
	_, err := uow.Create(newCampaign("persisted"))
	require.NoError(t, err)
	require.NoError(t, uow.AppendDonation(0, model.Donation{
		Donator:   alice,
		Amount:    model.Ether(1),
		DonatedAt: time.Unix(1_800_000_000, 0).UTC(),
	}))
	acct := uow.Escrow()
	acct.CurrentBalance = uint256.NewInt(10_000_000_000_000_000)
	acct.TotalAccumulated = acct.CurrentBalance.Clone()
	uow.SetEscrow(acct)

	rec := model.JournalRecord{
		Seq:         1,
		TxID:        "2f1e0c74-4d9b-4b7c-9d55-0d8f3f2f2a11",
		Command:     "CreateCampaign",
		Caller:      alice.Hex(),
		CommittedAt: time.Unix(1_800_000_000, 0).UTC(),
		Events:      json.RawMessage(`[]`),
		PrevHash:    "0000000000000000000000000000000000000000000000000000000000000000",
		Hash:        "1111111111111111111111111111111111111111111111111111111111111111",
	}
	require.NoError(t, store.Persist(ctx, uow.Changes(), rec))

	snap, journal, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Seq())
	require.Len(t, journal, 1)
	assert.Equal(t, rec.Hash, journal[0].Hash)

	c, err := snap.GetByID(0)
	require.NoError(t, err)
	assert.Equal(t, "persisted", c.Title)
	assert.Equal(t, alice, c.Owner)
	assert.True(t, c.TargetNative.Eq(model.Ether(10)))
	require.Len(t, c.Donators, 1)
	assert.True(t, c.Donators[0].Amount.Eq(model.Ether(1)))
	assert.Equal(t, "10000000000000000", snap.Escrow().CurrentBalance.Dec())
}
