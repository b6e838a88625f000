package corpus

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/orneryd/graphdb/pkg/errs"
)

// CorpusConfig is the optional per-corpus corpus-config.toml overlay,
// merged over DefaultCorpusConfig on import and written back.
type CorpusConfig struct {
	DiskBased  bool              `toml:"disk_based"`
	Segmentation string          `toml:"segmentation,omitempty"`
	Meta       map[string]string `toml:"meta,omitempty"`
}

// DefaultCorpusConfig is the base every loaded/written corpus-config.toml
// is merged over.
func DefaultCorpusConfig() CorpusConfig {
	return CorpusConfig{DiskBased: false, Meta: map[string]string{}}
}

func configPath(corpusDir string) string {
	return filepath.Join(corpusDir, "corpus-config.toml")
}

// loadCorpusConfig reads corpus-config.toml if present, merging it over
// DefaultCorpusConfig; a missing file is not an error.
func loadCorpusConfig(corpusDir string) (CorpusConfig, error) {
	cfg := DefaultCorpusConfig()
	data, err := os.ReadFile(configPath(corpusDir))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errs.Wrap(errs.IO, err, "read corpus-config.toml")
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errs.Wrap(errs.Serialization, err, "parse corpus-config.toml")
	}
	return cfg, nil
}

// writeCorpusConfig serializes cfg to corpus-config.toml, overwriting
// any existing file.
func writeCorpusConfig(corpusDir string, cfg CorpusConfig) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return errs.Wrap(errs.Serialization, err, "marshal corpus-config.toml")
	}
	if err := os.MkdirAll(corpusDir, 0o755); err != nil {
		return errs.Wrap(errs.IO, err, "create corpus directory")
	}
	if err := os.WriteFile(configPath(corpusDir), data, 0o644); err != nil {
		return errs.Wrap(errs.IO, err, "write corpus-config.toml")
	}
	return nil
}
