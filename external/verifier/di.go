package verifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/foxseedlab/nyukoku/internal/config"
	"github.com/foxseedlab/nyukoku/internal/verifier"
	"github.com/samber/do/v2"
)

const redisInitTimeout = 5 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (verifier.Verifier, error) {
		cfg := do.MustInvoke[*config.Config](i)
		base := NewHTTPVerifier(cfg.JavaProfileURL, cfg.BedrockProfileURL)
		if cfg.RedisURL == "" {
			return base, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), redisInitTimeout)
		defer cancel()
		rdb, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("identity cache disabled", "error", err)
			return base, nil
		}
		return NewCachingVerifier(base, rdb, cfg.IdentityCacheTTL), nil
	})
}
