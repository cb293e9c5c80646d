package config

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/eugener/remember/internal/memo"
)

// Bootstrap preloads the configured seed entries into the cache as raw JSON.
// Seeds without a TTL are pinned. An existing live entry is left untouched.
func Bootstrap(cfg *Config, cache *memo.Cache) error {
	for _, s := range cfg.Seeds {
		data, err := json.Marshal(s.Value)
		if err != nil {
			return fmt.Errorf("seed %q: encode value: %w", s.Key, err)
		}
		produce := func() (json.RawMessage, error) { return data, nil }

		if s.TTL > 0 {
			_, err = memo.Remember(cache, s.Key, produce, s.TTL)
		} else {
			_, err = memo.Forever(cache, s.Key, produce)
		}
		if err != nil {
			return fmt.Errorf("seed %q: %w", s.Key, err)
		}
		slog.Info("seeded cache entry", "key", s.Key, "ttl", s.TTL)
	}
	return nil
}
