package config

import (
	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for computing from a recorded JSONL file.
type ReplayConfig struct {
	Common
	Input string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return ReplayConfig{}, err
	}
	return ReplayConfig{
		Common: loadCommon(v),
		Input:  v.GetString("in"),
	}, nil
}
