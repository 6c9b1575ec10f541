package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkc/ttrak/internal/config"
	"github.com/tkc/ttrak/internal/domain"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedScheduler() *Scheduler {
	return &Scheduler{now: func() time.Time { return now }}
}

func syncConfig(lastSync map[domain.Source]time.Time) *config.Config {
	cfg := config.Default()
	cfg.Integrations.GitHub = &config.GitHubConfig{Token: "t", Repo: "acme/app", SyncInterval: 30}
	cfg.Integrations.Sync = &config.SyncConfig{Enabled: true, LastSync: lastSync}
	return cfg
}

func TestScheduler_IsSyncDue(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		want bool
	}{
		{
			name: "synced 10 minutes ago",
			cfg:  syncConfig(map[domain.Source]time.Time{domain.SourceGitHub: now.Add(-10 * time.Minute)}),
			want: false,
		},
		{
			name: "synced 31 minutes ago",
			cfg:  syncConfig(map[domain.Source]time.Time{domain.SourceGitHub: now.Add(-31 * time.Minute)}),
			want: true,
		},
		{
			name: "exactly one interval ago",
			cfg:  syncConfig(map[domain.Source]time.Time{domain.SourceGitHub: now.Add(-30 * time.Minute)}),
			want: false,
		},
		{
			name: "never synced",
			cfg:  syncConfig(nil),
			want: true,
		},
		{
			name: "sync disabled",
			cfg: func() *config.Config {
				c := syncConfig(nil)
				c.Integrations.Sync.Enabled = false
				return c
			}(),
			want: false,
		},
		{
			name: "nothing configured",
			cfg:  config.Default(),
			want: false,
		},
	}

	s := fixedScheduler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsSyncDue(tt.cfg))
		})
	}
}

func TestScheduler_DueProvidersPerInterval(t *testing.T) {
	cfg := syncConfig(map[domain.Source]time.Time{
		domain.SourceGitHub: now.Add(-10 * time.Minute),
		domain.SourceLinear: now.Add(-10 * time.Minute),
	})
	cfg.Integrations.Linear = &config.LinearConfig{APIKey: "k", SyncInterval: 5}

	assert.Equal(t, []domain.Source{domain.SourceLinear}, fixedScheduler().DueProviders(cfg))
}

func TestScheduler_MarkSyncedReturnsSnapshot(t *testing.T) {
	cfg := syncConfig(nil)
	s := fixedScheduler()

	next := s.MarkSynced(cfg, domain.SourceGitHub)

	last, ok := next.LastSync(domain.SourceGitHub)
	require.True(t, ok)
	assert.True(t, last.Equal(now))
	assert.False(t, s.IsSyncDue(next))

	_, ok = cfg.LastSync(domain.SourceGitHub)
	assert.False(t, ok, "original config must not change")
}
