package session

import (
	"github.com/foxseedlab/nyukoku/internal/config"
	"github.com/foxseedlab/nyukoku/internal/confirmation"
	"github.com/foxseedlab/nyukoku/internal/discord"
	"github.com/foxseedlab/nyukoku/internal/inspection"
	"github.com/foxseedlab/nyukoku/internal/metrics"
	"github.com/foxseedlab/nyukoku/internal/repository"
	"github.com/foxseedlab/nyukoku/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewStore(cfg.AuditLocation()), nil
	})
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		store := do.MustInvoke[*Store](i)
		rounds := do.MustInvoke[*confirmation.Rounds](i)
		inspector := do.MustInvoke[inspection.Inspector](i)
		dc := do.MustInvoke[discord.Client](i)
		repo := do.MustInvoke[repository.Repository](i)
		wh := do.MustInvoke[webhook.Sender](i)
		m := do.MustInvoke[*metrics.Metrics](i)
		return NewManager(cfg, store, rounds, inspector, dc, repo, wh, m), nil
	})
}
