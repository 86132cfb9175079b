package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
data:
  featureIndex: /data/medline/features.stream
  numDocs: 16000000
  numFeats: 550000
query:
  limit: 500
  threshold: 10.5
  minDate: 19650101
  maxDate: 20071231
validation:
  nFolds: 10
  numNegatives: 100000
  alpha: 0.95
  seed: 124
scan:
  workers: 4
logging:
  level: debug
  format: json
metrics:
  enabled: true
  port: 9101
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "/data/medline/features.stream", cfg.Data.FeatureIndex)
	assert.Equal(t, int64(16000000), cfg.Data.NumDocs)
	assert.Equal(t, uint32(550000), cfg.Data.NumFeats)
	assert.Equal(t, 500, cfg.Query.Limit)
	assert.Equal(t, 10.5, cfg.Query.Threshold)
	assert.Equal(t, 10, cfg.Validation.NFolds)
	assert.Equal(t, 0.95, cfg.Validation.Alpha)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "data:\n  featureIndex: /tmp/fi\n  numFeats: 100\n"))
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Query.Limit)
	assert.Equal(t, 10, cfg.Validation.NFolds)
	assert.Equal(t, 1, cfg.Scan.Workers)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MSCANNER_FEATURE_INDEX", "/override/fi")
	t.Setenv("MSCANNER_NUM_FEATS", "777")
	t.Setenv("MSCANNER_SCAN_WORKERS", "8")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "/override/fi", cfg.Data.FeatureIndex)
	assert.Equal(t, uint32(777), cfg.Data.NumFeats)
	assert.Equal(t, 8, cfg.Scan.Workers)
}

func TestValidationFailures(t *testing.T) {
	// Missing feature index path.
	_, err := Load(writeConfig(t, "data:\n  numFeats: 100\n"))
	assert.Error(t, err)

	// Inverted date window.
	_, err = Load(writeConfig(t, `
data:
  featureIndex: /tmp/fi
  numFeats: 100
query:
  minDate: 20080101
  maxDate: 20070101
`))
	assert.Error(t, err)

	// Alpha out of range.
	_, err = Load(writeConfig(t, `
data:
  featureIndex: /tmp/fi
  numFeats: 100
validation:
  alpha: 1.5
`))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
