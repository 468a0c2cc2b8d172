// Package config loads per-repository settings that spec.md's build-time
// constants (metadata directory name, SSH command, checksum block size,
// add-from date format) are made overridable through.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Settings holds the overridable constants for a hoard repository.
type Settings struct {
	MetadataDir       string `toml:"metadata_dir"`
	SSHCommand        string `toml:"ssh_command"`
	BlockSizeBytes    int    `toml:"block_size_bytes"`
	AddFromDateFormat string `toml:"add_from_date_format"`
}

// Default returns the build-time defaults named in spec.md §6.
func Default() Settings {
	return Settings{
		MetadataDir:       ".hoard",
		SSHCommand:        "ssh",
		BlockSizeBytes:    1 << 20,
		AddFromDateFormat: "2006-01",
	}
}

// FileName is the name of the optional config file under MetadataDir.
const FileName = "config.toml"

// Load reads <repoRoot>/<MetadataDir>/config.toml, overlaying any present
// keys onto Default(). A missing file is not an error.
func Load(repoRoot, metadataDir string) (Settings, error) {
	s := Default()
	if metadataDir != "" {
		s.MetadataDir = metadataDir
	}

	path := filepath.Join(repoRoot, s.MetadataDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}

	if _, err := toml.Decode(string(data), &s); err != nil {
		return s, err
	}
	return s, nil
}

// Save writes s as <repoRoot>/<s.MetadataDir>/config.toml.
func Save(repoRoot string, s Settings) error {
	path := filepath.Join(repoRoot, s.MetadataDir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(s)
}
