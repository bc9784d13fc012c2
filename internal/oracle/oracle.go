// Package oracle defines the price-version source the settlement engine
// consumes. Versions are identified by their request timestamp, rounded down
// to the feed granularity, and commit strictly in timestamp order.
package oracle

import (
	"errors"
	"sync"

	"PerpSettle/internal/fixed"
)

// PriceVersion is one committed oracle observation. An invalid version is a
// version the feed could not price; it still advances the sequence.
type PriceVersion struct {
	Timestamp int64
	Price     fixed.Dec
	Valid     bool
}

// Receipt carries the keeper costs attached to a committed version.
type Receipt struct {
	SettlementFee fixed.Dec // flat, split across the orders settling at the version
	OracleFee     fixed.Dec // flat, charged to the version's fee accumulator
}

// Oracle is the price source a market settles against.
type Oracle interface {
	// Current returns the next requestable version timestamp at or after
	// now, aligned to the feed granularity and strictly after the latest
	// committed version.
	Current(now int64) int64

	// Request registers interest in the version at the given timestamp so
	// the keeper knows to commit it.
	Request(timestamp int64)

	// Latest returns the most recently committed version, or false when
	// nothing has committed yet.
	Latest() (PriceVersion, bool)

	// At returns the committed version at the exact timestamp.
	At(timestamp int64) (PriceVersion, Receipt, bool)
}

var ErrNonMonotonic = errors.New("oracle: version commits out of order")

// Manual is an in-process oracle fed by explicit Commit calls. It backs tests
// and the single-node deployment where the price feed arrives over the wire
// and is committed by the ingestion loop.
type Manual struct {
	mu          sync.RWMutex
	granularity int64
	versions    map[int64]PriceVersion
	receipts    map[int64]Receipt
	requested   map[int64]bool
	latest      int64
}

func NewManual(granularity int64) *Manual {
	if granularity <= 0 {
		granularity = 1
	}
	return &Manual{
		granularity: granularity,
		versions:    make(map[int64]PriceVersion),
		receipts:    make(map[int64]Receipt),
		requested:   make(map[int64]bool),
	}
}

func (m *Manual) Current(now int64) int64 {
	ts := now - now%m.granularity
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ts <= m.latest {
		ts = m.latest + m.granularity
	}
	return ts
}

func (m *Manual) Request(timestamp int64) {
	m.mu.Lock()
	m.requested[timestamp] = true
	m.mu.Unlock()
}

// Requested reports whether any update asked for the version at timestamp.
// The keeper uses it to skip versions nobody is waiting on.
func (m *Manual) Requested(timestamp int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requested[timestamp]
}

// Commit records a version. Commits must arrive in strictly increasing
// timestamp order.
func (m *Manual) Commit(pv PriceVersion, receipt Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pv.Timestamp <= m.latest {
		return ErrNonMonotonic
	}
	m.versions[pv.Timestamp] = pv
	m.receipts[pv.Timestamp] = receipt
	m.latest = pv.Timestamp
	return nil
}

func (m *Manual) Latest() (PriceVersion, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == 0 {
		return PriceVersion{}, false
	}
	return m.versions[m.latest], true
}

func (m *Manual) At(timestamp int64) (PriceVersion, Receipt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pv, ok := m.versions[timestamp]
	if !ok {
		return PriceVersion{}, Receipt{}, false
	}
	return pv, m.receipts[timestamp], true
}
