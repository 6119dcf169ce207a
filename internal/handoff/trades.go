package handoff

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/denisbrodbeck/machineid"

	"scalping-core/internal/ledger"
)

// TradeFile is the producer/consumer trade handoff between the autonomous
// bot process and the control service. The bot appends executed trades; the
// service drains the file and merges them into its ledger. Delivery is
// at-least-once: a crash between read and delete re-delivers, and the
// consumer's merge is idempotent on trade id.
type TradeFile struct {
	mu       sync.Mutex
	path     string
	producer string
}

// NewTradeFile opens a handoff at path. The producer stamp identifies which
// machine wrote each record; it degrades to the hostname when no stable
// machine id is available.
func NewTradeFile(path string) *TradeFile {
	producer, err := machineid.ProtectedID("scalping-core")
	if err != nil {
		host, herr := os.Hostname()
		if herr != nil {
			host = "unknown"
		}
		producer = host
	}
	if len(producer) > 12 {
		producer = producer[:12]
	}
	return &TradeFile{path: path, producer: producer}
}

// Publish appends one trade to the handoff file via read-modify-write with
// an atomic rename, so the consumer never observes a half-written file.
func (f *TradeFile) Publish(t ledger.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	trades := f.readLocked()
	t.Producer = f.producer
	trades = append(trades, t)

	if err := f.writeLocked(trades); err != nil {
		return fmt.Errorf("handoff publish: %w", err)
	}
	log.Printf("handoff: published trade %s (%d pending)", t.TradeID, len(trades))
	return nil
}

// Drain reads every pending trade and removes the file. An empty or missing
// file drains to nothing; that is the steady state, not an error.
func (f *TradeFile) Drain() []ledger.Trade {
	f.mu.Lock()
	defer f.mu.Unlock()

	trades := f.readLocked()
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		log.Printf("handoff: remove %s: %v", f.path, err)
	}
	return trades
}

// Pending returns the number of undrained trades.
func (f *TradeFile) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readLocked())
}

// readLocked loads the current file contents. A corrupt file is dropped and
// logged rather than wedging the handoff forever.
func (f *TradeFile) readLocked() []ledger.Trade {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("handoff: read %s: %v", f.path, err)
		}
		return nil
	}
	var trades []ledger.Trade
	if err := json.Unmarshal(data, &trades); err != nil {
		log.Printf("handoff: corrupt file %s dropped: %v", f.path, err)
		if rmErr := os.Remove(f.path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Printf("handoff: remove corrupt %s: %v", f.path, rmErr)
		}
		return nil
	}
	return trades
}

func (f *TradeFile) writeLocked(trades []ledger.Trade) error {
	data, err := json.MarshalIndent(trades, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
