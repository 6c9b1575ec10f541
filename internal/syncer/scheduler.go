package syncer

import (
	"time"

	"github.com/tkc/ttrak/internal/config"
	"github.com/tkc/ttrak/internal/domain"
)

// Scheduler はサービスごとに同期が必要かどうかを判定する
type Scheduler struct {
	now func() time.Time
}

// NewScheduler は新しいSchedulerを作成する
func NewScheduler() *Scheduler {
	return &Scheduler{now: time.Now}
}

// ProviderDue はサービスの同期が必要かどうかを返す。
// 設定済みで、未同期か前回から同期間隔を超えて経過していれば true。
func (s *Scheduler) ProviderDue(cfg *config.Config, src domain.Source) bool {
	if !cfg.IsConfigured(src) {
		return false
	}
	last, ok := cfg.LastSync(src)
	if !ok {
		return true
	}
	return s.now().Sub(last) > cfg.SyncInterval(src)
}

// DueProviders は同期が必要なサービスを固定順で返す。同期が無効なら空
func (s *Scheduler) DueProviders(cfg *config.Config) []domain.Source {
	if !cfg.SyncEnabled() {
		return nil
	}
	var due []domain.Source
	for _, src := range cfg.Configured() {
		if s.ProviderDue(cfg, src) {
			due = append(due, src)
		}
	}
	return due
}

// IsSyncDue は全体として同期が必要かどうかを返す
func (s *Scheduler) IsSyncDue(cfg *config.Config) bool {
	return len(s.DueProviders(cfg)) > 0
}

// MarkSynced は最終同期時刻を現在時刻にした新しい設定を返す。
// 取得がエラーなく終わったサービスにだけ呼ぶこと。
func (s *Scheduler) MarkSynced(cfg *config.Config, src domain.Source) *config.Config {
	return s.MarkSyncedAt(cfg, src, s.now())
}

// MarkSyncedAt は最終同期時刻を at にした新しい設定を返す。
// at には取得を始めた時刻を渡す。取得中に更新されたものを次回の差分取得で取りこぼさない。
func (s *Scheduler) MarkSyncedAt(cfg *config.Config, src domain.Source, at time.Time) *config.Config {
	return cfg.WithLastSync(src, at)
}
