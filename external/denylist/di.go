package denylist

import (
	"github.com/foxseedlab/nyukoku/internal/config"
	"github.com/foxseedlab/nyukoku/internal/denylist"
	"github.com/foxseedlab/nyukoku/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*CachedStore, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		return NewCachedStore(repo, cfg.DenyListRefreshInterval), nil
	})
	do.Provide(injector, func(i do.Injector) (denylist.Checker, error) {
		return do.MustInvoke[*CachedStore](i), nil
	})
	do.Provide(injector, func(i do.Injector) (denylist.Admin, error) {
		return do.MustInvoke[*CachedStore](i), nil
	})
}
