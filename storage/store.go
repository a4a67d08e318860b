// Package storage persists action records and halt status in bbolt.
// Records are append-only and revisioned: every state change writes a
// new revision, so the full history of an action survives restarts and
// can be replayed for audit or monitor rebuilds.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/wardenhq/warden/types"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketRecords = "records"
	bucketMeta    = "meta"
	bucketHalt    = "halt"

	keyCurrentRevision = "current_revision"
	keyHaltStatus      = "status"
)

// RecordState is the in-memory index entry for one action: its latest
// known state and the revision that holds it.
type RecordState struct {
	ActionID  string
	State     types.ActionState
	Terminal  bool
	UpdatedAt time.Time
	LastRev   int64
}

// Less orders index entries by action ID for btree traversal.
func (r *RecordState) Less(than btree.Item) bool {
	other := than.(*RecordState)
	return r.ActionID < other.ActionID
}

// RecordStore is a revisioned store for action records backed by bbolt,
// with a btree index over the latest state of each action.
type RecordStore struct {
	mu         sync.RWMutex
	index      *btree.BTree
	db         *bolt.DB
	currentRev int64
	path       string
}

// NewRecordStore opens (or creates) the store under dir.
func NewRecordStore(dir string) (*RecordStore, error) {
	path := filepath.Join(dir, "warden.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketRecords, bucketMeta, bucketHalt} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &RecordStore{
		index: btree.New(32),
		db:    db,
		path:  path,
	}

	if err := s.loadRevision(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading revision: %w", err)
	}
	if err := s.rebuildIndex(); err != nil {
		db.Close()
		return nil, fmt.Errorf("rebuilding index: %w", err)
	}

	return s, nil
}

// SaveRecord appends a new revision of the record and updates the
// index. Returns the revision number assigned to this write.
func (s *RecordStore) SaveRecord(record *types.ActionRecord) (int64, error) {
	if record == nil || record.Action.ID == "" {
		return 0, fmt.Errorf("record missing action ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentRev++
	rev := s.currentRev

	err := s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}

		records := tx.Bucket([]byte(bucketRecords))
		key := makeRecordKey(rev, record.Action.ID)
		if err := records.Put(key, data); err != nil {
			return fmt.Errorf("storing record: %w", err)
		}

		meta := tx.Bucket([]byte(bucketMeta))
		return meta.Put([]byte(keyCurrentRevision), int64ToBytes(rev))
	})
	if err != nil {
		s.currentRev--
		return 0, err
	}

	s.index.ReplaceOrInsert(&RecordState{
		ActionID:  record.Action.ID,
		State:     record.State,
		Terminal:  record.State.Terminal(),
		UpdatedAt: record.UpdatedAt,
		LastRev:   rev,
	})

	return rev, nil
}

// GetRecord returns the latest revision of the record for actionID,
// or nil if the action is unknown.
func (s *RecordStore) GetRecord(actionID string) (*types.ActionRecord, error) {
	s.mu.RLock()
	item := s.index.Get(&RecordState{ActionID: actionID})
	s.mu.RUnlock()

	if item == nil {
		return nil, nil
	}
	state := item.(*RecordState)
	return s.loadRecordAt(state.LastRev, actionID)
}

// TerminalSince returns the latest revision of every record whose
// action reached a terminal state at or after since. Used to rebuild
// the cascading failure monitor on startup.
func (s *RecordStore) TerminalSince(since time.Time) ([]types.ActionRecord, error) {
	s.mu.RLock()
	var states []*RecordState
	s.index.Ascend(func(item btree.Item) bool {
		state := item.(*RecordState)
		if state.Terminal && !state.UpdatedAt.Before(since) {
			states = append(states, state)
		}
		return true
	})
	s.mu.RUnlock()

	records := make([]types.ActionRecord, 0, len(states))
	for _, state := range states {
		record, err := s.loadRecordAt(state.LastRev, state.ActionID)
		if err != nil {
			return nil, err
		}
		if record != nil {
			records = append(records, *record)
		}
	}
	return records, nil
}

// History returns every stored revision of the record for actionID in
// write order.
func (s *RecordStore) History(actionID string) ([]types.ActionRecord, error) {
	var history []types.ActionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(bucketRecords))
		return records.ForEach(func(k, v []byte) error {
			_, id, err := parseRecordKey(k)
			if err != nil || id != actionID {
				return nil
			}
			var record types.ActionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			history = append(history, record)
			return nil
		})
	})
	return history, err
}

// SaveHaltStatus persists the halt flag so it survives restarts.
func (s *RecordStore) SaveHaltStatus(status types.HaltStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(status)
		if err != nil {
			return fmt.Errorf("marshaling halt status: %w", err)
		}
		halt := tx.Bucket([]byte(bucketHalt))
		return halt.Put([]byte(keyHaltStatus), data)
	})
}

// LoadHaltStatus returns the persisted halt flag, or an inactive
// status if none has ever been saved.
func (s *RecordStore) LoadHaltStatus() (types.HaltStatus, error) {
	var status types.HaltStatus
	err := s.db.View(func(tx *bolt.Tx) error {
		halt := tx.Bucket([]byte(bucketHalt))
		data := halt.Get([]byte(keyHaltStatus))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &status)
	})
	return status, err
}

// EvictBefore removes all revisions of actions that reached a terminal
// state before cutoff. Returns the number of revisions deleted.
func (s *RecordStore) EvictBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evictable := make(map[string]bool)
	s.index.Ascend(func(item btree.Item) bool {
		state := item.(*RecordState)
		if state.Terminal && state.UpdatedAt.Before(cutoff) {
			evictable[state.ActionID] = true
		}
		return true
	})
	if len(evictable) == 0 {
		return 0, nil
	}

	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(bucketRecords))
		cursor := records.Cursor()
		var stale [][]byte
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			_, id, err := parseRecordKey(k)
			if err != nil {
				continue
			}
			if evictable[id] {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := records.Delete(k); err != nil {
				return fmt.Errorf("deleting record: %w", err)
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return deleted, err
	}

	for id := range evictable {
		s.index.Delete(&RecordState{ActionID: id})
	}
	return deleted, nil
}

// CurrentRevision returns the latest revision number written.
func (s *RecordStore) CurrentRevision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRev
}

// Close closes the underlying database.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

func (s *RecordStore) loadRecordAt(rev int64, actionID string) (*types.ActionRecord, error) {
	var record *types.ActionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(bucketRecords))
		data := records.Get(makeRecordKey(rev, actionID))
		if data == nil {
			return nil
		}
		record = &types.ActionRecord{}
		return json.Unmarshal(data, record)
	})
	return record, err
}

func (s *RecordStore) loadRevision() error {
	return s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		data := meta.Get([]byte(keyCurrentRevision))
		if data != nil {
			s.currentRev = bytesToInt64(data)
		}
		return nil
	})
}

// rebuildIndex scans every stored revision in key order; revisions are
// monotonic so the last write per action wins.
func (s *RecordStore) rebuildIndex() error {
	return s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(bucketRecords))
		return records.ForEach(func(k, v []byte) error {
			rev, id, err := parseRecordKey(k)
			if err != nil {
				return nil
			}
			var record types.ActionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil
			}
			s.index.ReplaceOrInsert(&RecordState{
				ActionID:  id,
				State:     record.State,
				Terminal:  record.State.Terminal(),
				UpdatedAt: record.UpdatedAt,
				LastRev:   rev,
			})
			return nil
		})
	})
}

// makeRecordKey builds a key sorted by revision: "0000000000000042:act-1".
func makeRecordKey(rev int64, actionID string) []byte {
	return []byte(fmt.Sprintf("%016d:%s", rev, actionID))
}

func parseRecordKey(key []byte) (int64, string, error) {
	parts := strings.SplitN(string(key), ":", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("invalid record key: %s", key)
	}
	rev, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid revision in key: %w", err)
	}
	return rev, parts[1], nil
}

func int64ToBytes(n int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

func bytesToInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}
