package persist

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const prefsBucket = "prefs"

// PrefStore keeps user preferences as JSON values in a bbolt database. It
// backs the pref provider.
type PrefStore struct {
	db *bolt.DB
}

// OpenPrefStore opens or creates the preference database at path
func OpenPrefStore(path string) (*PrefStore, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(prefsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize preferences: %w", err)
	}
	return &PrefStore{db: db}, nil
}

// Get decodes the preference stored under key
func (s *PrefStore) Get(key string) (value any, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(prefsBucket)).Get([]byte(key))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &value)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read preference %q: %w", key, err)
	}
	return value, ok, nil
}

// Set stores value under key
func (s *PrefStore) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode preference %q: %w", key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(prefsBucket)).Put([]byte(key), data)
	})
}

// Delete resets the preference under key
func (s *PrefStore) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(prefsBucket)).Delete([]byte(key))
	})
}

// Keys lists the stored preference keys in byte order
func (s *PrefStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(prefsBucket)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Close releases the database
func (s *PrefStore) Close() error {
	return s.db.Close()
}
