package ml

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// LoaderConfig describes where the trained artifacts live.
type LoaderConfig struct {
	Dir string
	// Files maps a model name to its artifact file name inside Dir.
	Files            map[string]string
	Python           PythonOptions
	EnableSurrogates bool
}

// ArtifactPath returns the artifact location for name.
func (c LoaderConfig) ArtifactPath(name string) string {
	return filepath.Join(c.Dir, c.Files[name])
}

// Load attempts every recognized artifact once and returns the resulting
// registry together with the per-model load status. Load failures are logged
// and leave the model unavailable; they never fail the call.
func Load(cfg LoaderConfig, metrics MetricsInterface) (*Registry, map[string]bool) {
	entries := make(map[string]*entry, len(ModelNames))
	status := make(map[string]bool, len(ModelNames))

	for _, name := range ModelNames {
		e := loadEntry(cfg, name)
		entries[name] = e
		status[name] = e.clf != nil
	}

	return newRegistry(entries, metrics), status
}

func loadEntry(cfg LoaderConfig, name string) *entry {
	e := &entry{}
	if cfg.Files[name] == "" {
		log.Warn().Str("model", name).Msg("No artifact configured for model")
		return withSurrogate(cfg, e, name)
	}
	path := cfg.ArtifactPath(name)

	md, err := LoadMetadata(path)
	switch {
	case err == nil:
		if verr := md.Validate(); verr != nil {
			log.Error().Err(verr).Str("model", name).Str("model_path", path).Msg("Model metadata does not match feature order, model disabled")
			return e
		}
		e.metadata = md
	case !errors.Is(err, fs.ErrNotExist):
		log.Warn().Err(err).Str("model", name).Msg("Failed to read model metadata, continuing without it")
	}

	clf, err := NewPythonClassifier(path, cfg.Python)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("model", name).Str("model_path", path).Msg("Model not found")
			return withSurrogate(cfg, e, name)
		}
		log.Error().Err(err).Str("model", name).Str("model_path", path).Msg("Error loading model")
		return e
	}

	e.clf = clf
	e.source = SourceArtifact
	log.Info().Str("model", name).Str("model_path", path).Bool("has_proba", clf.HasProbability()).Msg("Model loaded")
	return e
}

func withSurrogate(cfg LoaderConfig, e *entry, name string) *entry {
	if !cfg.EnableSurrogates {
		return e
	}
	e.clf = Surrogate(name)
	e.source = SourceSurrogate
	e.metadata = nil
	log.Warn().Str("model", name).Msg("Using built-in surrogate in place of missing artifact")
	return e
}
