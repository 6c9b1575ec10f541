package cli

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tkc/ttrak/internal/config"
	"github.com/tkc/ttrak/internal/github"
	"github.com/tkc/ttrak/internal/linear"
)

// credentialChecker は入力された認証情報が使えるかを確認する
type credentialChecker interface {
	GitHubLogin(ctx context.Context, token string) (string, error)
	LinearUser(ctx context.Context, apiKey string) (string, error)
}

// remoteChecker は実際のAPIに問い合わせて確認する
type remoteChecker struct{}

func (remoteChecker) GitHubLogin(ctx context.Context, token string) (string, error) {
	return github.NewClient(token).Viewer(ctx)
}

func (remoteChecker) LinearUser(ctx context.Context, apiKey string) (string, error) {
	_, name, err := linear.NewClient(apiKey).Viewer(ctx)
	return name, err
}

// SetupDefaults implements view.Controller.
func (a *app) SetupDefaults() config.SetupInput {
	in := config.SetupInput{}
	if gh := a.cfg.Integrations.GitHub; gh != nil {
		in.GitHubToken = gh.Token
		in.GitHubRepo = gh.Repo
	}
	if ln := a.cfg.Integrations.Linear; ln != nil {
		in.LinearAPIKey = ln.APIKey
	}
	return in
}

// Setup implements view.Controller.
//
// 認証情報を検証し、全て通ったときだけ設定を保存する。検証の失敗は
// メッセージとして返し、保存の失敗はエラーとして返す。
func (a *app) Setup(ctx context.Context, in config.SetupInput) (string, error) {
	in.GitHubToken = strings.TrimSpace(in.GitHubToken)
	in.GitHubRepo = strings.TrimSpace(in.GitHubRepo)
	in.LinearAPIKey = strings.TrimSpace(in.LinearAPIKey)

	var lines []string
	if in.GitHubToken != "" {
		login, err := a.checker.GitHubLogin(ctx, in.GitHubToken)
		if err != nil {
			a.logger.Warn("github credential check failed", zap.Error(err))
			return "✗ GitHub token rejected: " + err.Error(), nil
		}
		lines = append(lines, fmt.Sprintf("✓ GitHub: %s (%s)", login, in.GitHubRepo))
	}
	if in.LinearAPIKey != "" {
		name, err := a.checker.LinearUser(ctx, in.LinearAPIKey)
		if err != nil {
			a.logger.Warn("linear credential check failed", zap.Error(err))
			return "✗ Linear API key rejected: " + err.Error(), nil
		}
		lines = append(lines, "✓ Linear: "+name)
	}

	next := a.cfg.ApplySetup(in)
	if err := next.Save(a.dir); err != nil {
		return "", fmt.Errorf("failed to save config: %w", err)
	}
	a.cfg = next
	a.logger.Info("integrations updated", zap.Int("providers", len(next.Configured())))

	if len(lines) == 0 {
		return "✓ Integrations removed, sync disabled", nil
	}
	lines = append(lines, "Press r to sync now")
	return strings.Join(lines, "\n"), nil
}
