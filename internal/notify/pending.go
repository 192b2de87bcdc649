package notify

import (
	"time"

	"go.etcd.io/bbolt"
)

var pendingBucket = []byte("pending")

// PendingSet is the set of reminder ids currently showing a user-visible
// alert. It lives in its own bbolt file, deliberately outside the main store,
// so it survives process restarts independently of the reminder data.
type PendingSet struct {
	db *bbolt.DB
}

// OpenPendingSet opens (or creates) the side-store at path.
func OpenPendingSet(path string) (*PendingSet, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pendingBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &PendingSet{db: db}, nil
}

func (p *PendingSet) Add(id string) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(pendingBucket).Put([]byte(id), []byte{1})
	})
}

func (p *PendingSet) Remove(id string) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(pendingBucket).Delete([]byte(id))
	})
}

func (p *PendingSet) Contains(id string) (bool, error) {
	var found bool
	err := p.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(pendingBucket).Get([]byte(id)) != nil
		return nil
	})
	return found, err
}

func (p *PendingSet) IDs() ([]string, error) {
	var ids []string
	err := p.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(pendingBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			ids = append(ids, string(k))
		}
		return nil
	})
	return ids, err
}

func (p *PendingSet) Len() (int, error) {
	var n int
	err := p.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(pendingBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (p *PendingSet) Close() error {
	return p.db.Close()
}
