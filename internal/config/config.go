package config

import (
	"time"

	"github.com/tkc/ttrak/internal/domain"
)

// ConfigSchemaURL はconfig.jsonが参照するスキーマ
const ConfigSchemaURL = "https://raw.githubusercontent.com/tkc/ttrak/main/config.schema.json"

// DefaultSyncInterval はデフォルトの同期間隔（分）
const DefaultSyncInterval = 30

// Config はアプリケーション設定
type Config struct {
	Schema       string       `json:"$schema" yaml:"$schema,omitempty"`
	Version      int          `json:"version" yaml:"version"`
	Integrations Integrations `json:"integrations" yaml:"integrations"`
	Theme        ThemeConfig  `json:"theme" yaml:"theme"`
	DefaultView  domain.View  `json:"defaultView" yaml:"defaultView"`

	// 旧形式のトップレベルブロック。読み込み時にIntegrationsへ移す
	LegacyGitHub *legacyCredentials `json:"github,omitempty" yaml:"github,omitempty"`
	LegacyLinear *legacyCredentials `json:"linear,omitempty" yaml:"linear,omitempty"`
}

// Integrations は外部サービスごとの設定。nilは未設定を意味する
type Integrations struct {
	GitHub *GitHubConfig `json:"github,omitempty" yaml:"github,omitempty"`
	Linear *LinearConfig `json:"linear,omitempty" yaml:"linear,omitempty"`
	Sync   *SyncConfig   `json:"sync,omitempty" yaml:"sync,omitempty"`
}

// GitHubConfig はGitHub連携の設定
type GitHubConfig struct {
	Token              string `json:"token" yaml:"token"`
	Repo               string `json:"repo" yaml:"repo"` // owner/repo
	SyncInterval       int    `json:"syncInterval" yaml:"syncInterval"`
	SyncAssignedIssues bool   `json:"syncAssignedIssues,omitempty" yaml:"syncAssignedIssues,omitempty"`
	SyncAuthoredPRs    bool   `json:"syncAuthoredPRs,omitempty" yaml:"syncAuthoredPRs,omitempty"`

	tokenFromEnv bool
}

// LinearConfig はLinear連携の設定
type LinearConfig struct {
	APIKey           string `json:"apiKey" yaml:"apiKey"`
	TeamID           string `json:"teamId,omitempty" yaml:"teamId,omitempty"`
	SyncInterval     int    `json:"syncInterval" yaml:"syncInterval"`
	SyncOnlyAssigned *bool  `json:"syncOnlyAssigned,omitempty" yaml:"syncOnlyAssigned,omitempty"`

	keyFromEnv bool
}

// OnlyAssigned は担当分だけを同期するかを返す（未指定ならtrue）
func (l *LinearConfig) OnlyAssigned() bool {
	return l.SyncOnlyAssigned == nil || *l.SyncOnlyAssigned
}

// SyncConfig は同期の有効フラグと最終同期時刻
type SyncConfig struct {
	Enabled  bool                        `json:"enabled" yaml:"enabled"`
	LastSync map[domain.Source]time.Time `json:"lastSync,omitempty" yaml:"lastSync,omitempty"`
}

// ThemeConfig は表示テーマの設定
type ThemeConfig struct {
	Mode      string            `json:"mode" yaml:"mode"`
	Flavor    string            `json:"flavor" yaml:"flavor"`
	Overrides map[string]string `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

type legacyCredentials struct {
	Token  string `json:"token,omitempty" yaml:"token,omitempty"`
	APIKey string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Repo   string `json:"repo,omitempty" yaml:"repo,omitempty"`
	TeamID string `json:"teamId,omitempty" yaml:"teamId,omitempty"`
}

// Default はデフォルト設定を返す（同期無効、連携なし）
func Default() *Config {
	return &Config{
		Schema:      ConfigSchemaURL,
		Version:     1,
		Theme:       ThemeConfig{Mode: "auto", Flavor: "mocha"},
		DefaultView: domain.ViewAll,
	}
}

// Clone は他と共有しない設定のコピーを返す
func (c *Config) Clone() *Config {
	out := *c
	if c.Integrations.GitHub != nil {
		gh := *c.Integrations.GitHub
		out.Integrations.GitHub = &gh
	}
	if c.Integrations.Linear != nil {
		ln := *c.Integrations.Linear
		if ln.SyncOnlyAssigned != nil {
			v := *ln.SyncOnlyAssigned
			ln.SyncOnlyAssigned = &v
		}
		out.Integrations.Linear = &ln
	}
	if c.Integrations.Sync != nil {
		s := *c.Integrations.Sync
		if c.Integrations.Sync.LastSync != nil {
			s.LastSync = make(map[domain.Source]time.Time, len(c.Integrations.Sync.LastSync))
			for k, v := range c.Integrations.Sync.LastSync {
				s.LastSync[k] = v
			}
		}
		out.Integrations.Sync = &s
	}
	if c.Theme.Overrides != nil {
		out.Theme.Overrides = make(map[string]string, len(c.Theme.Overrides))
		for k, v := range c.Theme.Overrides {
			out.Theme.Overrides[k] = v
		}
	}
	out.LegacyGitHub = nil
	out.LegacyLinear = nil
	return &out
}

// SyncEnabled は同期が全体として有効かどうかを返す
func (c *Config) SyncEnabled() bool {
	return c.Integrations.Sync != nil && c.Integrations.Sync.Enabled
}

// IsConfigured は指定サービスが設定済みかどうかを返す
func (c *Config) IsConfigured(src domain.Source) bool {
	switch src {
	case domain.SourceGitHub:
		return c.Integrations.GitHub != nil
	case domain.SourceLinear:
		return c.Integrations.Linear != nil
	}
	return false
}

// Configured は設定済みのサービスを固定順で返す
func (c *Config) Configured() []domain.Source {
	var out []domain.Source
	for _, src := range []domain.Source{domain.SourceGitHub, domain.SourceLinear} {
		if c.IsConfigured(src) {
			out = append(out, src)
		}
	}
	return out
}

// SyncInterval はサービスの同期間隔を返す
func (c *Config) SyncInterval(src domain.Source) time.Duration {
	minutes := 0
	switch src {
	case domain.SourceGitHub:
		if c.Integrations.GitHub != nil {
			minutes = c.Integrations.GitHub.SyncInterval
		}
	case domain.SourceLinear:
		if c.Integrations.Linear != nil {
			minutes = c.Integrations.Linear.SyncInterval
		}
	}
	if minutes <= 0 {
		minutes = DefaultSyncInterval
	}
	return time.Duration(minutes) * time.Minute
}

// LastSync はサービスの最終同期時刻を返す。未同期ならfalse
func (c *Config) LastSync(src domain.Source) (time.Time, bool) {
	if c.Integrations.Sync == nil || c.Integrations.Sync.LastSync == nil {
		return time.Time{}, false
	}
	t, ok := c.Integrations.Sync.LastSync[src]
	return t, ok && !t.IsZero()
}

// WithLastSync は最終同期時刻を更新した新しい設定を返す
func (c *Config) WithLastSync(src domain.Source, at time.Time) *Config {
	out := c.Clone()
	if out.Integrations.Sync == nil {
		out.Integrations.Sync = &SyncConfig{Enabled: true}
	}
	if out.Integrations.Sync.LastSync == nil {
		out.Integrations.Sync.LastSync = make(map[domain.Source]time.Time)
	}
	out.Integrations.Sync.LastSync[src] = at.UTC()
	return out
}

// SetupInput はセットアップ画面で入力された値
type SetupInput struct {
	GitHubToken  string
	GitHubRepo   string
	LinearAPIKey string
}

// ApplySetup はセットアップ結果を反映した新しい設定を返す
func (c *Config) ApplySetup(in SetupInput) *Config {
	out := c.Clone()

	if in.GitHubToken != "" && in.GitHubRepo != "" {
		gh := GitHubConfig{SyncInterval: DefaultSyncInterval}
		if out.Integrations.GitHub != nil {
			gh = *out.Integrations.GitHub
		}
		if gh.Token != in.GitHubToken {
			gh.tokenFromEnv = false
		}
		gh.Token = in.GitHubToken
		gh.Repo = in.GitHubRepo
		out.Integrations.GitHub = &gh
	} else {
		out.Integrations.GitHub = nil
	}

	if in.LinearAPIKey != "" {
		ln := LinearConfig{SyncInterval: DefaultSyncInterval}
		if out.Integrations.Linear != nil {
			ln = *out.Integrations.Linear
		}
		if ln.APIKey != in.LinearAPIKey {
			ln.keyFromEnv = false
		}
		ln.APIKey = in.LinearAPIKey
		out.Integrations.Linear = &ln
	} else {
		out.Integrations.Linear = nil
	}

	if out.Integrations.GitHub != nil || out.Integrations.Linear != nil {
		if out.Integrations.Sync == nil {
			out.Integrations.Sync = &SyncConfig{}
		}
		out.Integrations.Sync.Enabled = true
	} else {
		out.Integrations.Sync = nil
	}

	return out
}

// normalize は欠けた値を補い、旧形式を移行する
func (c *Config) normalize() {
	if c.Schema == "" {
		c.Schema = ConfigSchemaURL
	}
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Theme.Mode == "" {
		c.Theme.Mode = "auto"
	}
	if c.Theme.Flavor == "" {
		c.Theme.Flavor = "mocha"
	}
	c.DefaultView = domain.ParseView(string(c.DefaultView))

	if c.LegacyGitHub != nil && c.Integrations.GitHub == nil && c.LegacyGitHub.Token != "" && c.LegacyGitHub.Repo != "" {
		c.Integrations.GitHub = &GitHubConfig{
			Token: c.LegacyGitHub.Token,
			Repo:  c.LegacyGitHub.Repo,
		}
	}
	if c.LegacyLinear != nil && c.Integrations.Linear == nil && c.LegacyLinear.APIKey != "" {
		c.Integrations.Linear = &LinearConfig{
			APIKey: c.LegacyLinear.APIKey,
			TeamID: c.LegacyLinear.TeamID,
		}
	}
	c.LegacyGitHub = nil
	c.LegacyLinear = nil

	if gh := c.Integrations.GitHub; gh != nil && gh.SyncInterval <= 0 {
		gh.SyncInterval = DefaultSyncInterval
	}
	if ln := c.Integrations.Linear; ln != nil && ln.SyncInterval <= 0 {
		ln.SyncInterval = DefaultSyncInterval
	}
}
