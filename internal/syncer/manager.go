package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tkc/ttrak/internal/config"
	"github.com/tkc/ttrak/internal/domain"
	"github.com/tkc/ttrak/internal/provider"
)

// Report は1回の同期の結果
type Report struct {
	RunID      string
	Tasks      []domain.Task
	AddedIDs   []string
	UpdatedIDs []string
	Errors     []*provider.Error
	Succeeded  []domain.Source
	Config     *config.Config // 最終同期時刻を反映した設定
}

// Attempted は何らかのサービスの取得を試みたかを返す
func (r *Report) Attempted() bool {
	return len(r.Succeeded) > 0 || len(r.Errors) > 0
}

// Changed は一覧に変更があったかを返す
func (r *Report) Changed() bool {
	return len(r.AddedIDs) > 0 || len(r.UpdatedIDs) > 0
}

// ErrorMessages はエラーを表示用の文字列にする
func (r *Report) ErrorMessages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return msgs
}

// Manager は複数サービスの取得と一覧へのマージを取りまとめる
type Manager struct {
	fetchers  map[domain.Source]provider.Fetcher
	scheduler *Scheduler
	logger    *zap.Logger
}

// NewManager は新しいManagerを作成する
func NewManager(fetchers []provider.Fetcher, scheduler *Scheduler, logger *zap.Logger) *Manager {
	m := &Manager{
		fetchers:  make(map[domain.Source]provider.Fetcher, len(fetchers)),
		scheduler: scheduler,
		logger:    logger,
	}
	for _, f := range fetchers {
		m.fetchers[f.Source()] = f
	}
	return m
}

type fetchResult struct {
	src     domain.Source
	tasks   []domain.Task
	err     *provider.Error
	started time.Time // 取得開始時刻。最終同期時刻にはこれを記録する
}

// Run は対象サービスから並行に取得し、全て終わってから固定順にマージする。
//
// force が false なら同期が必要なサービスだけ、true なら設定済みの全サービスが対象。
// 取得に失敗したサービスはエラー一覧に入り、最終同期時刻は更新しない。
// tasks と cfg は変更せず、結果は Report に新しい値として返す。
func (m *Manager) Run(ctx context.Context, cfg *config.Config, tasks []domain.Task, force bool) *Report {
	report := &Report{
		RunID:  uuid.NewString(),
		Tasks:  tasks,
		Config: cfg,
	}
	logger := m.logger.With(zap.String("run_id", report.RunID))

	targets := m.targets(cfg, force)
	if len(targets) == 0 {
		logger.Debug("no provider due for sync")
		return report
	}

	logger.Info("sync started", zap.Int("providers", len(targets)), zap.Bool("force", force))
	started := time.Now()

	results := make([]fetchResult, len(targets))
	var wg sync.WaitGroup
	for i, src := range targets {
		wg.Add(1)
		go func(i int, src domain.Source) {
			defer wg.Done()
			results[i] = m.fetch(ctx, cfg, src)
		}(i, src)
	}
	wg.Wait()

	current := tasks
	next := cfg
	for _, r := range results {
		if r.err != nil {
			logger.Warn("provider sync failed",
				zap.String("provider", string(r.src)),
				zap.Error(r.err),
			)
			report.Errors = append(report.Errors, r.err)
			continue
		}

		merged := Merge(current, r.tasks)
		current = merged.Tasks
		report.AddedIDs = append(report.AddedIDs, merged.AddedIDs...)
		report.UpdatedIDs = append(report.UpdatedIDs, merged.UpdatedIDs...)
		report.Succeeded = append(report.Succeeded, r.src)
		next = m.scheduler.MarkSyncedAt(next, r.src, r.started)

		logger.Info("provider synced",
			zap.String("provider", string(r.src)),
			zap.Int("fetched", len(r.tasks)),
			zap.Int("added", len(merged.AddedIDs)),
			zap.Int("updated", len(merged.UpdatedIDs)),
		)
	}

	report.Tasks = current
	report.Config = next

	logger.Info("sync finished",
		zap.Int("added", len(report.AddedIDs)),
		zap.Int("updated", len(report.UpdatedIDs)),
		zap.Int("errors", len(report.Errors)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return report
}

func (m *Manager) targets(cfg *config.Config, force bool) []domain.Source {
	var candidates []domain.Source
	if force {
		candidates = cfg.Configured()
	} else {
		candidates = m.scheduler.DueProviders(cfg)
	}

	var out []domain.Source
	for _, src := range candidates {
		if _, ok := m.fetchers[src]; !ok {
			m.logger.Warn("provider configured without fetcher", zap.String("provider", string(src)))
			continue
		}
		out = append(out, src)
	}
	return out
}

// fetch は1サービス分を取得する。panicもエラーとして扱い、兄弟の取得を止めない
func (m *Manager) fetch(ctx context.Context, cfg *config.Config, src domain.Source) (res fetchResult) {
	res.src = src
	res.started = m.scheduler.now()
	defer func() {
		if r := recover(); r != nil {
			res.tasks = nil
			res.err = provider.NewError(src, provider.ErrTransport, fmt.Errorf("fetch panicked: %v", r))
		}
	}()

	var since *time.Time
	if last, ok := cfg.LastSync(src); ok {
		since = &last
	}

	tasks, err := m.fetchers[src].Fetch(ctx, since)
	if err != nil {
		res.err = provider.AsError(src, err)
		return res
	}
	res.tasks = tasks
	return res
}
