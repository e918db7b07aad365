// internal/model/journal.go
package model

import (
	"encoding/json"
	"time"
)

// JournalRecord is one committed ledger transaction. Hash covers every other
// field, chaining each record to its predecessor.
type JournalRecord struct {
	Seq         uint64          `json:"seq" meddler:"seq"`
	TxID        string          `json:"tx_id" meddler:"tx_id"`
	Command     string          `json:"command" meddler:"command"`
	Caller      string          `json:"caller" meddler:"caller"`
	CommittedAt time.Time       `json:"committed_at" meddler:"committed_at,utctime"`
	Events      json.RawMessage `json:"events" meddler:"events"`
	PrevHash    string          `json:"prev_hash" meddler:"prev_hash"`
	Hash        string          `json:"hash" meddler:"hash"`
}
