package confirmation

import (
	"github.com/foxseedlab/nyukoku/internal/config"
	"github.com/foxseedlab/nyukoku/internal/discord"
	"github.com/foxseedlab/nyukoku/internal/metrics"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Rounds, error) {
		cfg := do.MustInvoke[*config.Config](i)
		dc := do.MustInvoke[discord.Client](i)
		m := do.MustInvoke[*metrics.Metrics](i)
		return NewRounds(dc, cfg.SponsorWaitTimeout, m), nil
	})
}
