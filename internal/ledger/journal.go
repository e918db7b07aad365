package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/unclebandit/fundraise-backend/internal/model"
)

// GenesisHash is the PrevHash of the first journal record.
var GenesisHash = strings.Repeat("0", 64)

type journalEvent struct {
	Name    string      `json:"name"`
	Payload model.Event `json:"payload"`
}

// Journal is the append-only, hash-chained log of committed transactions.
type Journal struct {
	mu      sync.RWMutex
	records []model.JournalRecord
}

// NewJournal restores a journal from persisted records and verifies the chain.
func NewJournal(records []model.JournalRecord) (*Journal, error) {
	j := &Journal{records: append([]model.JournalRecord(nil), records...)}
	if err := j.Verify(); err != nil {
		return nil, err
	}
	return j, nil
}

// Next builds the record that would follow the current head. It does not
// append it.
func (j *Journal) Next(txID, command, caller string, at time.Time, events []model.Event) (model.JournalRecord, error) {
	j.mu.RLock()
	seq, prev := uint64(1), GenesisHash
	if n := len(j.records); n > 0 {
		seq = j.records[n-1].Seq + 1
		prev = j.records[n-1].Hash
	}
	j.mu.RUnlock()

	wrapped := make([]journalEvent, len(events))
	for i, e := range events {
		wrapped[i] = journalEvent{Name: e.EventName(), Payload: e}
	}
	body, err := json.Marshal(wrapped)
	if err != nil {
		return model.JournalRecord{}, fmt.Errorf("encode events: %w", err)
	}
	rec := model.JournalRecord{
		Seq:     seq,
		TxID:    txID,
		Command: command,
		Caller:  caller,
		// storage keeps microseconds, hash what survives a round trip
		CommittedAt: at.UTC().Truncate(time.Microsecond),
		Events:      body,
		PrevHash:    prev,
	}
	rec.Hash = calculateHash(rec)
	return rec, nil
}

// Append adds rec after validating it against the current head.
func (j *Journal) Append(rec model.JournalRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if n := len(j.records); n > 0 {
		if err := validateRecord(rec, j.records[n-1]); err != nil {
			return fmt.Errorf("invalid record: %w", err)
		}
	} else if err := validateGenesis(rec); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	j.records = append(j.records, rec)
	return nil
}

// Len returns the number of records.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}

// Latest returns the head record, or false for an empty journal.
func (j *Journal) Latest() (model.JournalRecord, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.records) == 0 {
		return model.JournalRecord{}, false
	}
	return j.records[len(j.records)-1], true
}

// Records returns up to limit records with Seq > after. A limit <= 0 returns
// everything.
func (j *Journal) Records(after uint64, limit int) []model.JournalRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := []model.JournalRecord{}
	for _, r := range j.records {
		if r.Seq <= after {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out
}

// EventCount returns how many events the recorded transactions emitted.
func (j *Journal) EventCount() (uint64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var n uint64
	for _, r := range j.records {
		var events []json.RawMessage
		if err := json.Unmarshal(r.Events, &events); err != nil {
			return 0, fmt.Errorf("record %d events: %w", r.Seq, err)
		}
		n += uint64(len(events))
	}
	return n, nil
}

// Verify walks the whole chain.
func (j *Journal) Verify() error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if len(j.records) == 0 {
		return nil
	}
	if err := validateGenesis(j.records[0]); err != nil {
		return fmt.Errorf("record 0 invalid: %w", err)
	}
	for i := 1; i < len(j.records); i++ {
		if err := validateRecord(j.records[i], j.records[i-1]); err != nil {
			return fmt.Errorf("record %d invalid: %w", i, err)
		}
	}
	return nil
}

func validateGenesis(rec model.JournalRecord) error {
	if rec.PrevHash != GenesisHash {
		return fmt.Errorf("first record must link to the genesis hash")
	}
	if rec.Hash != calculateHash(rec) {
		return fmt.Errorf("invalid hash")
	}
	return nil
}

func validateRecord(current, previous model.JournalRecord) error {
	if current.Seq != previous.Seq+1 {
		return fmt.Errorf("invalid seq: expected %d, got %d", previous.Seq+1, current.Seq)
	}
	if current.PrevHash != previous.Hash {
		return fmt.Errorf("invalid prev hash: expected %s, got %s", previous.Hash, current.PrevHash)
	}
	if current.Hash != calculateHash(current) {
		return fmt.Errorf("invalid hash")
	}
	return nil
}

func calculateHash(rec model.JournalRecord) string {
	data, _ := json.Marshal(struct {
		Seq         uint64          `json:"seq"`
		TxID        string          `json:"tx_id"`
		Command     string          `json:"command"`
		Caller      string          `json:"caller"`
		CommittedAt int64           `json:"committed_at"`
		Events      json.RawMessage `json:"events"`
		PrevHash    string          `json:"prev_hash"`
	}{rec.Seq, rec.TxID, rec.Command, rec.Caller, rec.CommittedAt.UnixMicro(), rec.Events, rec.PrevHash})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
