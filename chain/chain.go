package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

var heightKey = []byte("/chain/height")

// Chain is the host every contract runs on. It hands out the current height,
// authenticates the sender of each call and executes calls one at a time,
// each inside a single badger transaction.
type Chain struct {
	mu    sync.Mutex
	db    *badger.DB
	sinks []Sink

	// Calls with events take a ticket while holding mu and publish when it is served,
	// so sinks see commit order and never run under mu.
	tickets   uint64
	publishMu sync.Mutex
	turn      *sync.Cond
	serving   uint64
}

type Config struct {
	// Badger database holding every contract's state
	DB *badger.DB
	// Receivers of the events emitted by committed calls
	Sinks []Sink
}

func New(config Config) (c *Chain) {
	c = &Chain{
		db:    config.DB,
		sinks: config.Sinks,
	}
	c.turn = sync.NewCond(&c.publishMu)
	return c
}

func readHeight(txn *badger.Txn) (height uint64, err error) {
	item, err := txn.Get(heightKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query height: %w", err)
	}

	err = item.Value(func(val []byte) (err error) {
		if len(val) != 8 {
			return fmt.Errorf("corrupted height entry of %d bytes", len(val))
		}
		height = binary.BigEndian.Uint64(val)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve height: %w", err)
	}
	return height, nil
}

// Height returns the height the next call will observe
func (c *Chain) Height() (height uint64, err error) {
	err = c.db.View(func(txn *badger.Txn) (err error) {
		height, err = readHeight(txn)
		return err
	})
	return height, err
}

// Mine advances the height counter by the passed number of blocks
func (c *Chain) Mine(ctx context.Context, blocks uint64) (height uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err = ctx.Err()
	if err != nil {
		return 0, err
	}

	err = c.db.Update(func(txn *badger.Txn) (err error) {
		height, err = readHeight(txn)
		if err != nil {
			return err
		}

		if height+blocks < height {
			return errors.New("height overflow")
		}
		height += blocks

		var raw [8]byte
		binary.BigEndian.PutUint64(raw[:], height)
		err = txn.Set(heightKey, raw[:])
		if err != nil {
			return fmt.Errorf("failed to set height: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mine blocks: %w", err)
	}
	return height, nil
}

// Execute runs fn as a single call sent by sender. Calls are totally ordered.
// When fn fails nothing it wrote is persisted and no events are published;
// the error returned is fn's own so contract errors can be matched by the caller.
// Events are published after the call lock is released.
func (c *Chain) Execute(ctx context.Context, sender Principal, fn func(tx *Tx) error) (err error) {
	err = sender.Validate()
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	events, ticket, err := c.execute(ctx, sender, fn)
	if err != nil || len(events) == 0 {
		return err
	}

	c.publishMu.Lock()
	for c.serving != ticket {
		c.turn.Wait()
	}
	c.publishMu.Unlock()

	c.publish(ctx, events)

	c.publishMu.Lock()
	c.serving++
	c.turn.Broadcast()
	c.publishMu.Unlock()
	return nil
}

// execute commits fn. Calls with events get the ticket of their publication turn.
func (c *Chain) execute(ctx context.Context, sender Principal, fn func(tx *Tx) error) (events []Event, ticket uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err = ctx.Err()
	if err != nil {
		return nil, 0, err
	}

	err = c.db.Update(func(txn *badger.Txn) (err error) {
		height, err := readHeight(txn)
		if err != nil {
			return err
		}

		tx := &Tx{
			ctx:      ctx,
			txn:      txn,
			writable: true,
			sender:   sender,
			caller:   sender,
			height:   height,
			events:   &events,
		}
		return fn(tx)
	})
	if err != nil {
		return nil, 0, err
	}

	if len(events) > 0 {
		ticket = c.tickets
		c.tickets++
	}
	return events, ticket, nil
}

// View runs fn against a read-only snapshot. Sender and caller are empty.
func (c *Chain) View(ctx context.Context, fn func(tx *Tx) error) (err error) {
	err = ctx.Err()
	if err != nil {
		return err
	}

	return c.db.View(func(txn *badger.Txn) (err error) {
		height, err := readHeight(txn)
		if err != nil {
			return err
		}

		tx := &Tx{
			ctx:    ctx,
			txn:    txn,
			height: height,
		}
		return fn(tx)
	})
}

func (c *Chain) publish(ctx context.Context, events []Event) {
	for _, sink := range c.sinks {
		err := sink.Publish(ctx, events)
		if err != nil {
			log.Println("ERROR|PUBLISHING|EVENTS", err)
		}
	}
}
