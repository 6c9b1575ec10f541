package cli

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tkc/ttrak/internal/config"
	"github.com/tkc/ttrak/internal/domain"
	"github.com/tkc/ttrak/internal/notify"
	"github.com/tkc/ttrak/internal/provider"
	"github.com/tkc/ttrak/internal/syncer"
	"github.com/tkc/ttrak/internal/tasklist"
)

// app は起動後の状態を持ち、一覧画面からの同期・セットアップ要求を処理する。
// 設定の更新はここを経由し、常に新しいスナップショットに差し替える。
type app struct {
	dir       string
	cfg       *config.Config
	tasks     *tasklist.Service
	scheduler *syncer.Scheduler
	checker   credentialChecker
	fetchers  func(cfg *config.Config, logger *zap.Logger) []provider.Fetcher
	notify    func(r *syncer.Report) error
	logger    *zap.Logger
}

func sendNotification(r *syncer.Report) error {
	return notify.SendSyncSummary(len(r.AddedIDs), len(r.UpdatedIDs), r.ErrorMessages())
}

// Refresh implements view.Controller.
//
// 同期が無効なら何もしない。有効なら間隔に関係なく設定済みの全サービスを同期する。
func (a *app) Refresh(ctx context.Context) (string, error) {
	if len(a.cfg.Configured()) == 0 {
		return "No integrations configured. Press S to set up GitHub or Linear.", nil
	}
	if !a.cfg.SyncEnabled() {
		return "Sync is disabled (integrations.sync.enabled is false)", nil
	}
	return a.sync(ctx, true)
}

// sync は同期してタスク一覧と設定を保存し、結果の要約を返す。
//
// マージと保存はタスク一覧のロック内で行う。タスクを保存してから最終同期時刻を保存するので、
// 保存に失敗しても同期済みと記録されることはない。
func (a *app) sync(ctx context.Context, force bool) (string, error) {
	manager := syncer.NewManager(a.fetchers(a.cfg, a.logger), a.scheduler, a.logger)

	var report *syncer.Report
	err := a.tasks.Replace(func(tasks []domain.Task) ([]domain.Task, error) {
		report = manager.Run(ctx, a.cfg, tasks, force)
		return report.Tasks, nil
	})
	if err != nil {
		return "", err
	}

	if len(report.Succeeded) > 0 {
		if err := report.Config.Save(a.dir); err != nil {
			return "", fmt.Errorf("failed to save config: %w", err)
		}
		a.cfg = report.Config
	}

	if report.Changed() || len(report.Errors) > 0 {
		if err := a.notify(report); err != nil {
			a.logger.Debug("notification failed", zap.Error(err))
		}
	}
	return summarize(report), nil
}

// summarize は同期結果を1行ずつの文字列にする
func summarize(r *syncer.Report) string {
	if !r.Attempted() {
		return "Nothing to sync"
	}

	var b strings.Builder
	if len(r.Succeeded) > 0 {
		fmt.Fprintf(&b, "✓ Synced %s: %d added, %d updated", joinSources(r.Succeeded), len(r.AddedIDs), len(r.UpdatedIDs))
	}
	for _, e := range r.Errors {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("✗ " + e.Error())
	}
	return b.String()
}

func joinSources(srcs []domain.Source) string {
	parts := make([]string, 0, len(srcs))
	for _, s := range srcs {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ", ")
}
