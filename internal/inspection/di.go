package inspection

import (
	"github.com/foxseedlab/nyukoku/internal/config"
	"github.com/foxseedlab/nyukoku/internal/denylist"
	"github.com/foxseedlab/nyukoku/internal/extractor"
	"github.com/foxseedlab/nyukoku/internal/metrics"
	"github.com/foxseedlab/nyukoku/internal/sponsor"
	"github.com/foxseedlab/nyukoku/internal/verifier"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (Inspector, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewPipeline(Params{
			Extractor:   do.MustInvoke[extractor.Extractor](i),
			DenyList:    do.MustInvoke[denylist.Checker](i),
			Verifier:    do.MustInvoke[verifier.Verifier](i),
			Registry:    do.MustInvoke[sponsor.Registry](i),
			Metrics:     do.MustInvoke[*metrics.Metrics](i),
			MaxStayDays: cfg.MaxStayDays,
			Location:    cfg.AuditLocation(),
		}), nil
	})
}
