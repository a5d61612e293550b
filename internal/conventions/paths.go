package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default meshforge data directory name (relative to home).
	DefaultDataDir = ".meshforge"
	// DBFile is the SQLite job database filename.
	DBFile = "meshforge.db"
	// PipelineConfigFile is the optional pipeline configuration filename.
	PipelineConfigFile = "pipeline.yaml"

	// DefaultListenAddr is the default API server address.
	DefaultListenAddr = ":3000"
	// DefaultMetricsListenAddr is the default metrics server address.
	DefaultMetricsListenAddr = ":8081"
	// MetricsPath is the HTTP path of the Prometheus metrics.
	MetricsPath = "/metrics"
)

// DataDir returns the meshforge data directory inside a home directory.
func DataDir(homeDir string) string {
	return filepath.Join(homeDir, DefaultDataDir)
}

// DBPath returns the path of the job database inside a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// PipelineConfigPath returns the path of the pipeline configuration inside a data directory.
func PipelineConfigPath(dataDir string) string {
	return filepath.Join(dataDir, PipelineConfigFile)
}
