package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"afyaband-ml/internal/features"
)

// Metadata describes a trained artifact. It is read from an optional
// "<artifact>.meta.json" file next to the artifact.
type Metadata struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	Features     []string  `json:"features"`
	Accuracy     float64   `json:"accuracy"`
	TrainingRows int       `json:"training_rows"`
}

func metadataPath(modelPath string) string {
	return modelPath + ".meta.json"
}

// LoadMetadata reads the sidecar for modelPath. A missing sidecar returns an
// error wrapping fs.ErrNotExist.
func LoadMetadata(modelPath string) (*Metadata, error) {
	file, err := os.Open(metadataPath(modelPath))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var md Metadata
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &md, nil
}

// Validate checks the recorded training feature order against the extractor.
// Metadata without a feature list is accepted.
func (m *Metadata) Validate() error {
	if m == nil || len(m.Features) == 0 {
		return nil
	}
	if len(m.Features) != features.VectorLen {
		return fmt.Errorf("artifact trained on %d features, extractor produces %d", len(m.Features), features.VectorLen)
	}
	for i, name := range m.Features {
		if name != features.FeatureNames[i] {
			return fmt.Errorf("feature %d is %q in artifact, %q in extractor", i, name, features.FeatureNames[i])
		}
	}
	return nil
}
