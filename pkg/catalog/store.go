package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/dataforge/objectcore/pkg/replica"
)

var (
	bucketDataRows  = []byte("data_rows")
	bucketPathIndex = []byte("path_index")
)

// rowKey builds the finalize identity key (resc_id, data_id) a row is
// stored and updated under. resc_id, not replica_number, is the stable
// half of the key: a replica's number can be reordered, but its
// residency on a physical resource at the time of the operation is
// fixed.
func rowKey(rescID, dataID string) []byte {
	return []byte(rescID + "\x00" + dataID)
}

// Row is one persisted catalog row: the canonical replica fields only.
// The logical path is not stored on the row; Lookup resolves it through
// the path_index bucket.
type Row struct {
	replica.Canonical
}

// Store is the row-level persistence the FSM drives. BoltStore is the
// only implementation; the interface exists so the FSM and Catalog
// don't need to know bbolt is underneath.
type Store interface {
	PutRow(rescID, dataID string, row Row) error
	RowsByDataID(dataID string) ([]Row, error)
	AllRows() ([]Row, error)

	BindPath(logicalPath, dataID string) error
	ResolvePath(logicalPath string) (string, bool, error)
	AllPaths() (map[string]string, error)

	Close() error
}

// BoltStore implements Store on top of a local bbolt file, one bucket
// for data rows and one for the logical-path -> data_id index.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the catalog's bbolt file
// under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "catalog.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketDataRows, bucketPathIndex} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PutRow writes row keyed by (rescID, dataID), upserting whatever was
// there before; the whole after-image replaces the row.
func (s *BoltStore) PutRow(rescID, dataID string, row Row) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDataRows)
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put(rowKey(rescID, dataID), data)
	})
}

// RowsByDataID scans every row whose data_id matches, for Lookup to
// assemble an object's full replica set.
func (s *BoltStore) RowsByDataID(dataID string) ([]Row, error) {
	var rows []Row
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDataRows)
		return b.ForEach(func(_, v []byte) error {
			var row Row
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if row.DataID == dataID {
				rows = append(rows, row)
			}
			return nil
		})
	})
	return rows, err
}

// AllRows returns every row in the table, for snapshotting.
func (s *BoltStore) AllRows() ([]Row, error) {
	var rows []Row
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDataRows)
		return b.ForEach(func(_, v []byte) error {
			var row Row
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		})
	})
	return rows, err
}

// BindPath records the logical_path -> data_id association created at
// CREATE time, before any finalize payload for the object exists.
func (s *BoltStore) BindPath(logicalPath, dataID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPathIndex)
		return b.Put([]byte(logicalPath), []byte(dataID))
	})
}

func (s *BoltStore) ResolvePath(logicalPath string) (string, bool, error) {
	var dataID string
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPathIndex)
		v := b.Get([]byte(logicalPath))
		if v != nil {
			dataID = string(v)
			found = true
		}
		return nil
	})
	return dataID, found, err
}

// AllPaths returns the full logical_path -> data_id index, for snapshotting.
func (s *BoltStore) AllPaths() (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPathIndex)
		return b.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}
