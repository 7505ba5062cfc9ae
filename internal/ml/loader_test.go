package ml

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afyaband-ml/internal/features"
)

func defaultFiles() map[string]string {
	return map[string]string{
		RandomForest: "random_forest_model.pkl",
		XGBoost:      "xgboost_model.pkl",
	}
}

func TestLoaderConfigArtifactPath(t *testing.T) {
	cfg := LoaderConfig{Dir: "ml_models", Files: defaultFiles()}
	assert.Equal(t, filepath.Join("ml_models", "xgboost_model.pkl"), cfg.ArtifactPath(XGBoost))
}

func TestLoadMissingArtifacts(t *testing.T) {
	metrics := NewMockMetrics()
	reg, status := Load(LoaderConfig{Dir: t.TempDir(), Files: defaultFiles()}, metrics)

	assert.Equal(t, map[string]bool{RandomForest: false, XGBoost: false}, status)
	assert.False(t, reg.AnyAvailable())
	assert.False(t, metrics.loaded[RandomForest])
	assert.False(t, metrics.loaded[XGBoost])
}

func TestLoadSurrogatesForMissingArtifacts(t *testing.T) {
	reg, status := Load(LoaderConfig{Dir: t.TempDir(), Files: defaultFiles(), EnableSurrogates: true}, nil)

	assert.True(t, status[RandomForest])
	assert.True(t, status[XGBoost])
	for _, info := range reg.Info() {
		assert.Equal(t, SourceSurrogate, info.Source, info.Name)
	}
}

func TestLoadArtifact(t *testing.T) {
	dir := t.TempDir()
	rfPath := touchModel(t, dir, "random_forest_model.pkl")
	writeMetadata(t, rfPath, Metadata{Version: "rf-1", Features: features.FeatureNames[:]})
	py := fakePython(t, probaResponder)

	reg, status := Load(LoaderConfig{
		Dir:    dir,
		Files:  defaultFiles(),
		Python: PythonOptions{PythonPath: py, ScriptDir: dir},
	}, nil)

	assert.True(t, status[RandomForest])
	assert.False(t, status[XGBoost])

	info := reg.Info()
	assert.Equal(t, SourceArtifact, info[0].Source)
	require.NotNil(t, info[0].Metadata)
	assert.Equal(t, "rf-1", info[0].Metadata.Version)
}

func TestLoadRejectsMismatchedMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xgboost_model.pkl")
	writeMetadata(t, path, Metadata{Features: []string{"avg_sys", "avg_dia"}})

	_, status := Load(LoaderConfig{Dir: dir, Files: defaultFiles(), EnableSurrogates: true}, nil)
	assert.False(t, status[XGBoost])
	assert.True(t, status[RandomForest])
}

func TestLoadUnconfiguredArtifact(t *testing.T) {
	_, status := Load(LoaderConfig{Dir: t.TempDir(), Files: map[string]string{}}, nil)
	assert.False(t, status[RandomForest])
	assert.False(t, status[XGBoost])
}

func TestRegistryMetadataAccessor(t *testing.T) {
	dir := t.TempDir()
	rfPath := touchModel(t, dir, "random_forest_model.pkl")
	writeMetadata(t, rfPath, Metadata{Version: "rf-2", Accuracy: 0.9})
	py := fakePython(t, probaResponder)

	reg, _ := Load(LoaderConfig{Dir: dir, Files: defaultFiles(), Python: PythonOptions{PythonPath: py, ScriptDir: dir}}, nil)
	require.NotNil(t, reg.Metadata(RandomForest))
	assert.Equal(t, "rf-2", reg.Metadata(RandomForest).Version)
	assert.Nil(t, reg.Metadata(XGBoost))
	assert.Nil(t, reg.Metadata("svm"))
}
