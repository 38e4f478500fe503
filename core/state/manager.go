package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"shodeposit/storage"
)

var errNilManager = errors.New("state: manager not initialised")

// Manager exposes RLP-encoded key/value state on top of a storage.Database.
//
// A root manager writes straight through to the database. Copy returns an
// overlay that buffers writes until Commit, which lets callers execute an
// operation speculatively and either publish every write or none of them.
// Overlays may be nested; committing an overlay merges its writes into the
// parent, and committing a first-level overlay flushes them to the database in
// one batch.
//
// Manager is not safe for concurrent use; callers serialise access.
type Manager struct {
	db     storage.Database
	parent *Manager
	writes map[string][]byte
}

// NewManager creates a root state manager over db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Copy returns a write-buffering overlay reading through m.
func (m *Manager) Copy() *Manager {
	return &Manager{parent: m, writes: make(map[string][]byte)}
}

// Commit publishes buffered writes to the parent. Calling Commit on a root
// manager is a no-op.
func (m *Manager) Commit() error {
	if m == nil {
		return errNilManager
	}
	if m.parent == nil || len(m.writes) == 0 {
		return nil
	}
	if m.parent.parent == nil {
		if err := m.parent.db.WriteBatch(m.batch()); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	} else {
		for k, v := range m.writes {
			m.parent.writes[k] = v
		}
	}
	m.writes = make(map[string][]byte)
	return nil
}

// Discard drops every buffered write.
func (m *Manager) Discard() {
	if m == nil || m.parent == nil {
		return
	}
	m.writes = make(map[string][]byte)
}

func (m *Manager) batch() []storage.Write {
	keys := make([]string, 0, len(m.writes))
	for k := range m.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]storage.Write, 0, len(keys))
	for _, k := range keys {
		out = append(out, storage.Write{Key: []byte(k), Value: m.writes[k]})
	}
	return out
}

func (m *Manager) getRaw(key []byte) ([]byte, error) {
	if m.parent != nil {
		if v, ok := m.writes[string(key)]; ok {
			return v, nil
		}
		return m.parent.getRaw(key)
	}
	if m.db == nil {
		return nil, errNilManager
	}
	v, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func (m *Manager) putRaw(key, value []byte) error {
	if m.parent != nil {
		m.writes[string(key)] = value
		return nil
	}
	if m.db == nil {
		return errNilManager
	}
	if value == nil {
		return m.db.Delete(key)
	}
	return m.db.Put(key, value)
}

// KVPut stores the RLP encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil {
		return errNilManager
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.putRaw(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil {
		return false, errNilManager
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.getRaw(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil {
		return errNilManager
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.putRaw(key, nil)
}

// KVKeys lists the live keys under prefix, including buffered writes, in
// ascending order.
func (m *Manager) KVKeys(prefix []byte) ([][]byte, error) {
	if m == nil {
		return nil, errNilManager
	}
	if m.parent == nil {
		if m.db == nil {
			return nil, errNilManager
		}
		return m.db.Keys(prefix)
	}
	base, err := m.parent.KVKeys(prefix)
	if err != nil {
		return nil, err
	}
	live := make(map[string]struct{}, len(base))
	for _, k := range base {
		live[string(k)] = struct{}{}
	}
	for k, v := range m.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(live, k)
			continue
		}
		live[k] = struct{}{}
	}
	keys := make([]string, 0, len(live))
	for k := range live {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out, nil
}
