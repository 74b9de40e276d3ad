package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadFile decodes a TOML config file on top of cfg. Keys absent from the
// file keep their current values, so the usual order is DefaultConfig →
// LoadFile → ParseFlags. Unknown keys are rejected to catch typos.
//
// Example:
//
//	destination = "/music/432"
//	jobs = 4
//	exists = "skip"
//
//	[encode]
//	format = "flac"
//	pitch_to = 432
//	quality = 5
func LoadFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.ConfigFile = path
	return nil
}
