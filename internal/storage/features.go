package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"afyaband-ml/internal/features"
)

// FeatureRecord is one extracted feature vector with the outcome it produced,
// kept so the models can be retrained on field data.
type FeatureRecord struct {
	DeviceID    string             `json:"deviceId"`
	Timestamp   time.Time          `json:"timestamp"`
	Model       string             `json:"model"`
	Features    map[string]float64 `json:"features"`
	Prediction  int                `json:"prediction"`
	Probability *float64           `json:"probability,omitempty"`
}

// NewFeatureRecord names v's values by feature.
func NewFeatureRecord(deviceID, model string, v features.Vector, prediction int, probability *float64) FeatureRecord {
	return FeatureRecord{
		DeviceID:    deviceID,
		Timestamp:   time.Now().UTC(),
		Model:       model,
		Features:    v.Named(),
		Prediction:  prediction,
		Probability: probability,
	}
}

// Vector returns the record's features in extractor order.
func (r FeatureRecord) Vector() features.Vector {
	return featureVector(r.Features)
}

// StoreFeatures stores a feature record for model retraining
func (s *Store) StoreFeatures(record FeatureRecord) error {
	if record.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(featuresBucket))

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal feature record: %w", err)
		}

		return b.Put(recordKey(record.DeviceID, record.Timestamp), data)
	})
}

// GetFeaturesInRange returns a device's features with start <= timestamp <= end
func (s *Store) GetFeaturesInRange(deviceID string, start, end time.Time) ([]FeatureRecord, error) {
	return recordsInRange[FeatureRecord](s.db, featuresBucket, deviceID, start, end)
}

// ExportFeaturesCSV writes every feature record as CSV. It returns the number
// of rows written.
func (s *Store) ExportFeaturesCSV(w io.Writer) (int, error) {
	var records []FeatureRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(featuresBucket)).ForEach(func(_, v []byte) error {
			var rec FeatureRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // Skip malformed records
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return WriteFeaturesCSV(w, records)
}

// WriteFeaturesCSV writes records in the column order the training scripts
// expect: device, timestamp, the eight features in extractor order,
// prediction, probability.
func WriteFeaturesCSV(w io.Writer, records []FeatureRecord) (int, error) {
	cw := csv.NewWriter(w)

	header := []string{"device_id", "timestamp"}
	header = append(header, features.FeatureNames[:]...)
	header = append(header, "prediction", "probability")
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	rows := 0
	for _, rec := range records {
		row := make([]string, 0, len(header))
		row = append(row, rec.DeviceID, rec.Timestamp.Format(time.RFC3339Nano))
		for _, x := range rec.Vector() {
			row = append(row, strconv.FormatFloat(x, 'f', -1, 64))
		}
		row = append(row, strconv.Itoa(rec.Prediction))
		if rec.Probability != nil {
			row = append(row, strconv.FormatFloat(*rec.Probability, 'f', -1, 64))
		} else {
			row = append(row, "")
		}

		if err := cw.Write(row); err != nil {
			return rows, fmt.Errorf("write csv row: %w", err)
		}
		rows++
	}

	cw.Flush()
	return rows, cw.Error()
}
