package duckdb

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// Extensions to install and load (e.g., "spatial" for geometry checks)
	Extensions []string `mapstructure:"extensions"`

	// Settings to apply after opening (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`

	// ReadOnly opens the database file with access_mode=READ_ONLY.
	ReadOnly bool `mapstructure:"read_only"`
}

// dsn appends the access mode to a file path. In-memory databases cannot be
// opened read-only and are returned unchanged.
func (p *Params) dsn(path string) string {
	if !p.ReadOnly || path == ":memory:" {
		return path
	}
	return path + "?access_mode=READ_ONLY"
}

// ParseParams decodes raw adapter params into Params.
func ParseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}
	return p, nil
}
