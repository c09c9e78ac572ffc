package extractor

import (
	"context"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/samber/do/v2"

	"github.com/foxseedlab/nyukoku/internal/config"
	"github.com/foxseedlab/nyukoku/internal/extractor"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (extractor.Extractor, error) {
		c := do.MustInvoke[*config.Config](i)
		ctx := context.Background()

		chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL: c.ArkBaseURL,
			Region:  c.ArkRegion,
			APIKey:  c.ArkAPIKey,
			Model:   c.ArkModel,
		})
		if err != nil {
			return nil, err
		}

		return NewLLMExtractor(ctx, chatModel, c.AuditLocation())
	})
}
