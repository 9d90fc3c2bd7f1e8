package chain_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/chain/testsuite"
	"github.com/stretchr/testify/assert"
)

type counter struct {
	Value uint64 `json:"value"`
}

func (c *counter) Bytes() (bytes []byte) {
	bytes, _ = json.Marshal(c)
	return bytes
}

func (c *counter) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, c)
}

var errBoom = chain.NewError(999, "boom")

// gate blocks every publication until released
type gate struct {
	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
	names   []string
}

func (g *gate) Publish(_ context.Context, events []chain.Event) (err error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, event := range events {
		g.names = append(g.names, event.Name)
	}
	return nil
}

func Test_Chain(t *testing.T) {
	key := []byte("/test/counter")

	t.Run("Mine", func(t *testing.T) {
		assertions := assert.New(t)

		c := testsuite.NewChain(t)

		height, err := c.Height()
		assertions.Nil(err, "failed to query height")
		assertions.Equal(uint64(0), height)

		height, err = c.Mine(context.TODO(), 10)
		assertions.Nil(err, "failed to mine")
		assertions.Equal(uint64(10), height)

		err = c.Execute(context.TODO(), testsuite.Principal(), func(tx *chain.Tx) error {
			assertions.Equal(uint64(10), tx.Height())
			return nil
		})
		assertions.Nil(err, "failed to execute")
	})

	t.Run("Rollback", func(t *testing.T) {
		assertions := assert.New(t)

		recorder := &testsuite.Recorder{}
		c := testsuite.NewChain(t, recorder)
		sender := testsuite.Principal()

		err := c.Execute(context.TODO(), sender, func(tx *chain.Tx) error {
			err := tx.Emit("contract", "committed", map[string]uint64{"value": 1})
			if err != nil {
				return err
			}
			return tx.Set(key, &counter{Value: 1})
		})
		assertions.Nil(err, "failed to execute")

		err = c.Execute(context.TODO(), sender, func(tx *chain.Tx) error {
			err := tx.Set(key, &counter{Value: 2})
			if err != nil {
				return err
			}
			err = tx.Emit("contract", "discarded", nil)
			if err != nil {
				return err
			}
			return fmt.Errorf("wrapped: %w", errBoom)
		})
		assertions.ErrorIs(err, errBoom)
		code, ok := chain.Code(err)
		assertions.True(ok)
		assertions.Equal(uint32(999), code)

		var stored counter
		err = c.View(context.TODO(), func(tx *chain.Tx) error {
			found, err := tx.Get(key, &stored)
			assertions.True(found)
			return err
		})
		assertions.Nil(err, "failed to view")
		assertions.Equal(uint64(1), stored.Value, "failed call must not persist")
		assertions.Equal([]string{"committed"}, recorder.Names(), "failed call must not publish")
	})

	t.Run("Caller", func(t *testing.T) {
		assertions := assert.New(t)

		c := testsuite.NewChain(t)
		sender := testsuite.Principal()
		contract := chain.Principal(sender + ".payment-processor")

		err := c.Execute(context.TODO(), sender, func(tx *chain.Tx) error {
			assertions.Equal(sender, tx.Sender())
			assertions.Equal(sender, tx.Caller())

			return tx.As(contract, func(inner *chain.Tx) error {
				assertions.Equal(sender, inner.Sender())
				assertions.Equal(contract, inner.Caller())
				return nil
			})
		})
		assertions.Nil(err, "failed to execute")
	})

	t.Run("Sequence", func(t *testing.T) {
		assertions := assert.New(t)

		c := testsuite.NewChain(t)
		seq := []byte("/test/seq")

		for expect := uint64(1); expect <= 3; expect++ {
			err := c.Execute(context.TODO(), testsuite.Principal(), func(tx *chain.Tx) error {
				id, err := tx.Next(seq)
				assertions.Equal(expect, id)
				return err
			})
			assertions.Nil(err, "failed to execute")
		}
	})

	t.Run("ReadOnly", func(t *testing.T) {
		assertions := assert.New(t)

		c := testsuite.NewChain(t)
		err := c.View(context.TODO(), func(tx *chain.Tx) error {
			return tx.Set(key, &counter{})
		})
		assertions.True(errors.Is(err, chain.ErrReadOnly))
	})

	t.Run("InvalidSender", func(t *testing.T) {
		assertions := assert.New(t)

		c := testsuite.NewChain(t)
		err := c.Execute(context.TODO(), "", func(tx *chain.Tx) error { return nil })
		assertions.ErrorIs(err, chain.ErrInvalidPrincipal)

		err = c.Execute(context.TODO(), "has space", func(tx *chain.Tx) error { return nil })
		assertions.ErrorIs(err, chain.ErrInvalidPrincipal)
	})

	t.Run("SlowSink", func(t *testing.T) {
		assertions := assert.New(t)

		sink := &gate{entered: make(chan struct{}, 1), release: make(chan struct{})}
		c := testsuite.NewChain(t, sink)

		emit := func(name string) func(tx *chain.Tx) error {
			return func(tx *chain.Tx) error {
				return tx.Emit("contract", name, nil)
			}
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			assertions.Nil(c.Execute(context.TODO(), testsuite.Principal(), emit("first")))
		}()
		<-sink.entered

		done := make(chan error, 1)
		go func() {
			done <- c.Execute(context.TODO(), testsuite.Principal(), func(tx *chain.Tx) error {
				return tx.Set(key, &counter{Value: 7})
			})
		}()
		select {
		case err := <-done:
			assertions.Nil(err, "failed to execute")
		case <-time.After(5 * time.Second):
			t.Fatal("a blocked sink stalled an unrelated call")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			assertions.Nil(c.Execute(context.TODO(), testsuite.Principal(), emit("second")))
		}()

		height, err := c.Mine(context.TODO(), 1)
		assertions.Nil(err, "mining must not wait for publication")
		assertions.Equal(uint64(1), height)

		close(sink.release)
		wg.Wait()

		sink.mu.Lock()
		defer sink.mu.Unlock()
		assertions.Equal([]string{"first", "second"}, sink.names, "publication keeps commit order")
	})
}
