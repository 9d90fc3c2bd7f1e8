package testsuite

import (
	"context"
	"sync"
	"testing"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/random"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
)

// NewChain opens a chain over an in-memory badger database that is closed with the test
func NewChain(t testing.TB, sinks ...chain.Sink) (c *chain.Chain) {
	assertions := assert.New(t)

	options := badger.
		DefaultOptions("").
		WithLoggingLevel(badger.ERROR).
		WithLogger(nil).
		WithInMemory(true)
	db, err := badger.Open(options)
	if !assertions.Nil(err, "failed to open database") {
		t.FailNow()
	}
	t.Cleanup(func() { db.Close() })

	return chain.New(chain.Config{DB: db, Sinks: sinks})
}

var principalMu sync.Mutex

// Principal returns a random standard principal
func Principal() (p chain.Principal) {
	principalMu.Lock()
	defer principalMu.Unlock()

	return chain.Principal("ST" + random.String(random.PseudoRand, random.CharsetUpperAlphaNumeric, 38))
}

// Recorder keeps every published event in memory
type Recorder struct {
	mu     sync.Mutex
	events []chain.Event
}

var _ chain.Sink = (*Recorder)(nil)

func (r *Recorder) Publish(_ context.Context, events []chain.Event) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Events() (events []chain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]chain.Event(nil), r.events...)
}

// Names lists the names of the recorded events in publication order
func (r *Recorder) Names() (names []string) {
	for _, event := range r.Events() {
		names = append(names, event.Name)
	}
	return names
}
