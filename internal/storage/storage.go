// Package storage persists assessment history and feature records for the
// AfyaBand service. It uses BoltDB as the underlying storage engine.
//
// Records are keyed "<deviceId>_<unixnano>" so a cursor seek on the device
// prefix yields that device's records in time order.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"afyaband-ml/internal/features"
)

const (
	dbFile            = "afyaband.db"
	assessmentsBucket = "assessments"
	featuresBucket    = "features"
)

// AssessmentRecord is one stored risk assessment.
type AssessmentRecord struct {
	ID           string             `json:"id"`
	DeviceID     string             `json:"deviceId"`
	Timestamp    time.Time          `json:"timestamp"`
	Model        string             `json:"model"`
	Source       string             `json:"source"`
	Status       string             `json:"status"`
	RiskScore    float64            `json:"riskScore"`
	Probability  *float64           `json:"probability,omitempty"`
	ReadingCount int                `json:"readingCount"`
	Features     map[string]float64 `json:"features"`
}

// Store provides persistent storage using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database under dataPath and ensures the buckets
// exist.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(assessmentsBucket)); err != nil {
			return fmt.Errorf("create assessments bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(featuresBucket)); err != nil {
			return fmt.Errorf("create features bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.db.Path()
}

// StoreAssessment assigns an ID and timestamp when missing and writes the
// record. The stored record is returned.
func (s *Store) StoreAssessment(rec AssessmentRecord) (AssessmentRecord, error) {
	if rec.DeviceID == "" {
		return rec, fmt.Errorf("device id is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(assessmentsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal assessment: %w", err)
		}

		return b.Put(recordKey(rec.DeviceID, rec.Timestamp), data)
	})
	return rec, err
}

// GetAssessments returns a device's assessments with start <= timestamp <= end,
// oldest first.
func (s *Store) GetAssessments(deviceID string, start, end time.Time) ([]AssessmentRecord, error) {
	return recordsInRange[AssessmentRecord](s.db, assessmentsBucket, deviceID, start, end)
}

// RecentAssessments returns up to limit of a device's most recent
// assessments, newest first.
func (s *Store) RecentAssessments(deviceID string, limit int) ([]AssessmentRecord, error) {
	var records []AssessmentRecord
	if limit <= 0 {
		return records, nil
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(assessmentsBucket)).Cursor()
		prefix := devicePrefix(deviceID)

		// ':' sorts just after the digits, so seeking to it lands one past the
		// device's newest key
		k, v := c.Seek(append(append([]byte{}, prefix...), ':'))
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}

		for ; k != nil && bytes.HasPrefix(k, prefix) && len(records) < limit; k, v = c.Prev() {
			if !isDeviceKey(k, prefix) {
				continue
			}
			var rec AssessmentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

// recordsInRange scans one device's keys between start and end inclusive.
func recordsInRange[T any](db *bbolt.DB, bucketName, deviceID string, start, end time.Time) ([]T, error) {
	var records []T

	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		c := b.Cursor()

		prefix := devicePrefix(deviceID)
		startKey := recordKey(deviceID, start)
		endKey := recordKey(deviceID, end)

		for k, v := c.Seek(startKey); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if !isDeviceKey(k, prefix) {
				continue
			}
			if keyAfter(k, endKey, prefix) {
				break
			}

			var rec T
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

func devicePrefix(deviceID string) []byte {
	return []byte(deviceID + "_")
}

func recordKey(deviceID string, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s_%d", deviceID, ts.UnixNano()))
}

// isDeviceKey rejects keys of other devices whose id merely starts with this
// device's prefix, e.g. "band_2_..." when scanning "band_".
func isDeviceKey(k, prefix []byte) bool {
	rest := k[len(prefix):]
	if len(rest) == 0 {
		return false
	}
	for _, ch := range rest {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// keyAfter compares the timestamp parts numerically; lexical order only holds
// for equal-length nanosecond values.
func keyAfter(k, endKey, prefix []byte) bool {
	a, b := k[len(prefix):], endKey[len(prefix):]
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return bytes.Compare(a, b) > 0
}

// featureVector converts a named map back to the fixed order.
func featureVector(named map[string]float64) features.Vector {
	var v features.Vector
	for i, name := range features.FeatureNames {
		v[i] = named[name]
	}
	return v
}
