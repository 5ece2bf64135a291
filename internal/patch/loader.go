package patch

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sync/errgroup"
)

// ConfigError wraps a patch-file loading failure with the file it came
// from. Path is empty when the config was loaded from a string.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("patch config %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("patch config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LoadFromString parses and validates a patch config from TOML text.
func LoadFromString(text string) (*PatchConfig, error) {
	var cfg PatchConfig
	if err := toml.Unmarshal([]byte(text), &cfg); err != nil {
		return nil, &ConfigError{Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return &cfg, nil
}

// LoadFromPath reads, parses, and validates one patch config file.
func LoadFromPath(path string) (*PatchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	cfg, err := LoadFromString(string(data))
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// LoadAll loads several patch config files concurrently. The returned
// configs keep the order of paths; the first failure cancels the rest.
func LoadAll(ctx context.Context, paths []string) ([]*PatchConfig, error) {
	configs := make([]*PatchConfig, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cfg, err := LoadFromPath(path)
			if err != nil {
				return err
			}
			configs[i] = cfg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return configs, nil
}
