package sponsor

import (
	"github.com/foxseedlab/nyukoku/internal/config"
	"github.com/foxseedlab/nyukoku/internal/sponsor"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (sponsor.Registry, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPRegistry(c.SponsorRegistryURL, c.SponsorRegistryToken), nil
	})
}
