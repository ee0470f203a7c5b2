package cartclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"storefront/internal/models"
)

var (
	metaBucket  = []byte("meta")
	cartsBucket = []byte("carts")
	sessionKey  = []byte("sessionId")
)

// Entry is the locally mirrored state of one session's cart.
// Dirty is set while the entry holds edits the server never saw.
type Entry struct {
	Items    models.CartItems `json:"items"`
	Dirty    bool             `json:"dirty"`
	SyncedAt time.Time        `json:"syncedAt"`
}

// Mirror is a single-file local copy of carts
type Mirror struct {
	db *bolt.DB
}

// OpenMirror opens (or creates) the mirror file at path
func OpenMirror(path string) (*Mirror, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cart mirror: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{metaBucket, cartsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Mirror{db: db}, nil
}

// Close releases the file lock
func (m *Mirror) Close() error {
	return m.db.Close()
}

// SessionID returns the persisted session id, generating and storing one on
// first use.
func (m *Mirror) SessionID() (string, error) {
	var id string
	err := m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if v := b.Get(sessionKey); v != nil {
			id = string(v)
			return nil
		}
		id = NewSessionID(time.Now())
		return b.Put(sessionKey, []byte(id))
	})
	return id, err
}

// ResetSession forgets the stored session id, e.g. after a completed checkout
func (m *Mirror) ResetSession() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Delete(sessionKey)
	})
}

// Load returns the mirrored entry, or an empty one when nothing is stored
func (m *Mirror) Load(sessionID string) (*Entry, error) {
	entry := &Entry{Items: models.CartItems{}}
	err := m.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cartsBucket).Get([]byte(sessionID))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, entry)
	})
	if err != nil {
		return nil, err
	}
	if entry.Items == nil {
		entry.Items = models.CartItems{}
	}
	return entry, nil
}

// Save overwrites the mirrored entry
func (m *Mirror) Save(sessionID string, entry *Entry) error {
	if sessionID == "" {
		return errors.New("cart mirror: empty session id")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cartsBucket).Put([]byte(sessionID), data)
	})
}
