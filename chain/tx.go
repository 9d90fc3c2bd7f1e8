package chain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var ErrReadOnly = errors.New("write attempted on a read-only call")

// Record is a value that knows its own storage encoding
type Record interface {
	Bytes() (bytes []byte)
	FromBytes(b []byte) (err error)
}

// Tx is the view a contract has of the call it is executing
type Tx struct {
	ctx      context.Context
	txn      *badger.Txn
	writable bool
	sender   Principal
	caller   Principal
	height   uint64
	events   *[]Event
}

func (tx *Tx) Context() (ctx context.Context) { return tx.ctx }

// Sender is the principal that signed the call
func (tx *Tx) Sender() (p Principal) { return tx.sender }

// Caller is the principal that invoked the running contract. Equals Sender at the top level
// and the calling contract inside As.
func (tx *Tx) Caller() (p Principal) { return tx.caller }

// Height observed by the whole call
func (tx *Tx) Height() (height uint64) { return tx.height }

// As runs fn with the calling contract set to contract. Used by one contract to invoke another
// inside the same atomic call.
func (tx *Tx) As(contract Principal, fn func(tx *Tx) error) (err error) {
	inner := *tx
	inner.caller = contract
	return fn(&inner)
}

// Get loads the record stored at key into r. found is false when the key is absent.
func (tx *Tx) Get(key []byte, r Record) (found bool, err error) {
	item, err := tx.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query %s: %w", key, err)
	}

	err = item.Value(func(val []byte) (err error) {
		return r.FromBytes(val)
	})
	if err != nil {
		return false, fmt.Errorf("failed to retrieve %s: %w", key, err)
	}
	return true, nil
}

func (tx *Tx) Has(key []byte) (found bool, err error) {
	_, err = tx.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query %s: %w", key, err)
	}
	return true, nil
}

func (tx *Tx) Set(key []byte, r Record) (err error) {
	return tx.SetRaw(key, r.Bytes())
}

func (tx *Tx) SetRaw(key, value []byte) (err error) {
	if !tx.writable {
		return ErrReadOnly
	}

	err = tx.txn.Set(key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (tx *Tx) Delete(key []byte) (err error) {
	if !tx.writable {
		return ErrReadOnly
	}

	err = tx.txn.Delete(key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Iterate calls fn for every entry under prefix in key order. Stops at the first error.
func (tx *Tx) Iterate(prefix []byte, fn func(key, value []byte) error) (err error) {
	options := badger.DefaultIteratorOptions
	options.Prefix = prefix
	it := tx.txn.NewIterator(options)
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()

		value, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("failed to retrieve %s: %w", item.Key(), err)
		}

		err = fn(item.KeyCopy(nil), value)
		if err != nil {
			return err
		}
	}
	return nil
}

// Uint64 reads a counter. Absent counters are zero.
func (tx *Tx) Uint64(key []byte) (value uint64, err error) {
	item, err := tx.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query %s: %w", key, err)
	}

	err = item.Value(func(val []byte) (err error) {
		if len(val) != 8 {
			return fmt.Errorf("corrupted counter %s", key)
		}
		value = binary.BigEndian.Uint64(val)
		return nil
	})
	return value, err
}

func (tx *Tx) SetUint64(key []byte, value uint64) (err error) {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], value)
	return tx.SetRaw(key, raw[:])
}

// Next increments the sequence stored at key and returns the new value. Sequences start at 1.
func (tx *Tx) Next(key []byte) (id uint64, err error) {
	id, err = tx.Uint64(key)
	if err != nil {
		return 0, err
	}

	id++
	err = tx.SetUint64(key, id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Emit queues an event that is published once the call commits
func (tx *Tx) Emit(contract Principal, name string, data any) (err error) {
	if !tx.writable {
		return ErrReadOnly
	}

	contents, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", name, err)
	}

	*tx.events = append(*tx.events, Event{
		Id:       uuid.New(),
		Contract: contract,
		Name:     name,
		Height:   tx.height,
		Sender:   tx.sender,
		Data:     contents,
	})
	return nil
}
