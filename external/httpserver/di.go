package httpserver

import (
	"github.com/foxseedlab/nyukoku/internal/config"
	"github.com/foxseedlab/nyukoku/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		manager := do.MustInvoke[*session.Manager](i)
		return New(cfg.HTTPAddr, NewRouter(manager, nil)), nil
	})
}
