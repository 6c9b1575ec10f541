package cli

import (
	"go.uber.org/zap"

	"github.com/tkc/ttrak/internal/config"
	"github.com/tkc/ttrak/internal/github"
	"github.com/tkc/ttrak/internal/linear"
	"github.com/tkc/ttrak/internal/provider"
)

// buildFetchers は設定済みのサービスごとにアダプタを作成する
func buildFetchers(cfg *config.Config, logger *zap.Logger) []provider.Fetcher {
	var fetchers []provider.Fetcher
	if gh := cfg.Integrations.GitHub; gh != nil {
		fetchers = append(fetchers, github.NewAdapter(*gh, logger))
	}
	if ln := cfg.Integrations.Linear; ln != nil {
		fetchers = append(fetchers, linear.NewAdapter(*ln, logger))
	}
	return fetchers
}
