// Package journal records live execution intents in a write-ahead log.
// An intent is written as pending before the store transaction and marked
// done or failed afterwards, so a crash between the two leaves a visible
// pending record instead of a silent gap.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
)

const (
	intentKeyPrefix = "exec_intent_"

	walSegmentThreshold = 1000
	walMaxSegments      = 100
	walDirPermissions   = 0o755
)

// IntentStatus tracks an intent through its lifecycle.
type IntentStatus string

const (
	IntentPending IntentStatus = "pending"
	IntentDone    IntentStatus = "done"
	IntentFailed  IntentStatus = "failed"
)

// Intent is one recorded execution attempt.
type Intent struct {
	ID        string          `json:"id"`
	Status    IntentStatus    `json:"status"`
	BotID     string          `json:"bot_id"`
	SessionID string          `json:"session_id"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Time      time.Time       `json:"time"`
	Error     string          `json:"error,omitempty"`
}

// Journal is a WAL-backed intent log. One journal is shared by all
// concurrently executing bots, so every access to the intent set and the
// WAL index goes through the mutex.
type Journal struct {
	mu      sync.Mutex
	wal     *gowal.Wal
	intents []*Intent
	index   map[string]*Intent
}

// Open initializes the WAL in dir and recovers previously written intents.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, walDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure journal directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "log_",
		SegmentThreshold: walSegmentThreshold,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create journal WAL")
	}

	j := &Journal{
		wal:   wal,
		index: make(map[string]*Intent),
	}

	// later records for the same id overwrite earlier ones, so replaying
	// in order reconstructs the final status of every intent.
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, intentKeyPrefix) {
			continue
		}
		var intent Intent
		if err := json.Unmarshal(msg.Value, &intent); err != nil {
			continue
		}
		if existing, ok := j.index[intent.ID]; ok {
			*existing = intent
			continue
		}
		recovered := intent
		j.intents = append(j.intents, &recovered)
		j.index[recovered.ID] = &recovered
	}

	return j, nil
}

// Prepare records a pending intent before the execution is persisted.
func (j *Journal) Prepare(botID, sessionID, symbol string, price, amount decimal.Decimal, at time.Time) (*Intent, error) {
	intent := &Intent{
		ID:        uuid.New().String(),
		Status:    IntentPending,
		BotID:     botID,
		SessionID: sessionID,
		Symbol:    symbol,
		Price:     price,
		Amount:    amount,
		Time:      at,
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.persist(intent); err != nil {
		return nil, err
	}

	j.intents = append(j.intents, intent)
	j.index[intent.ID] = intent
	return intent, nil
}

// MarkDone flags the intent as successfully persisted.
func (j *Journal) MarkDone(intent *Intent) error {
	if intent == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	intent.Status = IntentDone
	intent.Error = ""
	return j.persist(intent)
}

// MarkFailed flags the intent with the failure cause.
func (j *Journal) MarkFailed(intent *Intent, cause error) error {
	if intent == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	intent.Status = IntentFailed
	if cause != nil {
		intent.Error = cause.Error()
	} else {
		intent.Error = ""
	}
	return j.persist(intent)
}

// Pending returns intents that never reached done or failed, typically
// because the process died mid-execution.
func (j *Journal) Pending() []*Intent {
	j.mu.Lock()
	defer j.mu.Unlock()

	var pending []*Intent
	for _, intent := range j.intents {
		if intent.Status == IntentPending {
			pending = append(pending, intent)
		}
	}
	return pending
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	return j.wal.Close()
}

// persist writes the intent's current state to the WAL. Callers must hold
// the mutex: the next WAL index is read-then-written.
func (j *Journal) persist(intent *Intent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return errors.Wrap(err, "failed to marshal intent")
	}
	key := fmt.Sprintf("%s%s", intentKeyPrefix, intent.ID)
	return j.wal.Write(j.wal.CurrentIndex()+1, key, data)
}
