package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/sanonone/llahdb/pkg/core/llah"
	"gopkg.in/yaml.v3"
)

// Options configures the behavior of the Engine, including persistence paths,
// automatic snapshots and the LLAH parameters.
type Options struct {
	// DataDir is where the snapshot and journal are stored. It is created
	// automatically if it does not exist. Empty means memory only.
	DataDir string `yaml:"data_dir"`

	// SnapshotFilename is the name of the snapshot file (default: "llah.snap").
	SnapshotFilename string `yaml:"snapshot_filename"`

	// JournalFilename is the name of the journal recording changes made
	// since the last snapshot (default: "llah.journal").
	JournalFilename string `yaml:"journal_filename"`

	// AutoSaveInterval defines how much time must pass since the last save
	// before a new snapshot is triggered (if AutoSaveThreshold is also met).
	// Set to 0 to disable auto-saving.
	AutoSaveInterval time.Duration `yaml:"auto_save_interval"`

	// AutoSaveThreshold defines how many changes must occur before a new
	// snapshot is triggered (if AutoSaveInterval is also met).
	AutoSaveThreshold int64 `yaml:"auto_save_threshold"`

	// LookupWorkers bounds the goroutines used by LookupBatch. 0 = GOMAXPROCS.
	LookupWorkers int `yaml:"lookup_workers"`

	// LLAH holds the recognition parameters. They are stored in the snapshot
	// and must not change between runs over the same DataDir.
	LLAH llah.Config `yaml:"llah"`
}

// DefaultOptions returns a standard configuration suitable for most use cases.
//
// Defaults:
//   - DataDir: provided path
//   - Snapshot: "llah.snap", journal: "llah.journal"
//   - AutoSave: Every 60s if at least 100 changes occurred
//   - LLAH: llah.DefaultConfig()
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:           dataDir,
		SnapshotFilename:  "llah.snap",
		JournalFilename:   "llah.journal",
		AutoSaveInterval:  60 * time.Second,
		AutoSaveThreshold: 100,
		LLAH:              llah.DefaultConfig(),
	}
}

// LoadOptions reads a YAML configuration file on top of base using strict
// parsing: unknown keys are an error. An empty path returns base unchanged.
func LoadOptions(path string, base Options) (Options, error) {
	opts := base
	if path == "" {
		return opts, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return opts, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	if err := decoder.Decode(&opts); err != nil {
		return base, fmt.Errorf("YAML syntax error in config: %w", err)
	}
	if err := opts.LLAH.Validate(); err != nil {
		return base, err
	}
	return opts, nil
}
