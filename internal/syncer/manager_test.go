package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tkc/ttrak/internal/config"
	"github.com/tkc/ttrak/internal/domain"
	"github.com/tkc/ttrak/internal/provider"
)

// MockFetcher はprovider.Fetcherのモック
type MockFetcher struct {
	mock.Mock
	src domain.Source
}

func (m *MockFetcher) Source() domain.Source {
	return m.src
}

func (m *MockFetcher) Fetch(ctx context.Context, since *time.Time) ([]domain.Task, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Task), args.Error(1)
}

// panicFetcher は取得中にpanicする
type panicFetcher struct{}

func (panicFetcher) Source() domain.Source { return domain.SourceLinear }

func (panicFetcher) Fetch(context.Context, *time.Time) ([]domain.Task, error) {
	panic("boom")
}

// slowFetcher は取得中に時計を進める
type slowFetcher struct {
	clock  *steppingClock
	step   time.Duration
	mu     sync.Mutex
	sinces []*time.Time
}

func (f *slowFetcher) Source() domain.Source { return domain.SourceLinear }

func (f *slowFetcher) Fetch(_ context.Context, since *time.Time) ([]domain.Task, error) {
	f.mu.Lock()
	f.sinces = append(f.sinces, since)
	f.mu.Unlock()
	f.clock.advance(f.step)
	return []domain.Task{linearTask(1)}, nil
}

type steppingClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *steppingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *steppingClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

func bothConfigured() *config.Config {
	cfg := config.Default()
	cfg.Integrations.GitHub = &config.GitHubConfig{Token: "t", Repo: "acme/app", SyncInterval: 30}
	cfg.Integrations.Linear = &config.LinearConfig{APIKey: "k", SyncInterval: 30}
	cfg.Integrations.Sync = &config.SyncConfig{Enabled: true}
	return cfg
}

func linearTask(n int) domain.Task {
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	id := string(rune('a' + n))
	return domain.Task{
		ID:         "ENG-" + string(rune('0'+n)),
		Title:      "linear " + id,
		Status:     domain.StatusTodo,
		Priority:   domain.PriorityNone,
		Source:     domain.SourceLinear,
		ExternalID: "linear:team:" + id,
		CreatedAt:  at,
		UpdatedAt:  at,
		Linear:     &domain.LinearMeta{ID: id, TeamID: "team"},
	}
}

func newTestManager(fetchers ...provider.Fetcher) *Manager {
	return NewManager(fetchers, fixedScheduler(), zap.NewNop())
}

func TestManager_PartialFailure(t *testing.T) {
	gh := &MockFetcher{src: domain.SourceGitHub}
	gh.On("Fetch", mock.Anything, mock.Anything).
		Return(nil, provider.NewError(domain.SourceGitHub, provider.ErrAuth, errors.New("bad credentials")))
	ln := &MockFetcher{src: domain.SourceLinear}
	ln.On("Fetch", mock.Anything, mock.Anything).
		Return([]domain.Task{linearTask(1), linearTask(2), linearTask(3)}, nil)

	cfg := bothConfigured()
	report := newTestManager(gh, ln).Run(context.Background(), cfg, nil, false)

	require.Len(t, report.Tasks, 3)
	assert.Equal(t, []string{"ENG-1", "ENG-2", "ENG-3"}, report.AddedIDs)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, domain.SourceGitHub, report.Errors[0].Source)
	assert.ErrorIs(t, report.Errors[0], provider.ErrAuth)
	assert.Equal(t, []domain.Source{domain.SourceLinear}, report.Succeeded)

	_, ok := report.Config.LastSync(domain.SourceGitHub)
	assert.False(t, ok)
	last, ok := report.Config.LastSync(domain.SourceLinear)
	require.True(t, ok)
	assert.True(t, last.Equal(now))

	_, ok = cfg.LastSync(domain.SourceLinear)
	assert.False(t, ok, "input config must not change")

	gh.AssertExpectations(t)
	ln.AssertExpectations(t)
}

func TestManager_PassesWatermarkAndSkipsFreshProviders(t *testing.T) {
	lastGitHub := now.Add(-2 * time.Hour)
	cfg := bothConfigured()
	cfg.Integrations.Sync.LastSync = map[domain.Source]time.Time{
		domain.SourceGitHub: lastGitHub,
		domain.SourceLinear: now.Add(-time.Minute),
	}

	gh := &MockFetcher{src: domain.SourceGitHub}
	gh.On("Fetch", mock.Anything, mock.MatchedBy(func(since *time.Time) bool {
		return since != nil && since.Equal(lastGitHub)
	})).Return([]domain.Task{}, nil)
	ln := &MockFetcher{src: domain.SourceLinear}

	report := newTestManager(gh, ln).Run(context.Background(), cfg, nil, false)

	assert.Empty(t, report.Errors)
	assert.Equal(t, []domain.Source{domain.SourceGitHub}, report.Succeeded)
	assert.False(t, report.Changed())
	gh.AssertExpectations(t)
	ln.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestManager_ForceFetchesEveryConfiguredProvider(t *testing.T) {
	cfg := bothConfigured()
	cfg.Integrations.Sync.Enabled = false

	gh := &MockFetcher{src: domain.SourceGitHub}
	gh.On("Fetch", mock.Anything, (*time.Time)(nil)).Return([]domain.Task{}, nil)
	ln := &MockFetcher{src: domain.SourceLinear}
	ln.On("Fetch", mock.Anything, (*time.Time)(nil)).Return([]domain.Task{}, nil)

	m := newTestManager(gh, ln)
	assert.False(t, m.Run(context.Background(), cfg, nil, false).Attempted())

	report := m.Run(context.Background(), cfg, nil, true)
	assert.Equal(t, []domain.Source{domain.SourceGitHub, domain.SourceLinear}, report.Succeeded)
	gh.AssertExpectations(t)
	ln.AssertExpectations(t)
}

func TestManager_RecoversFromPanic(t *testing.T) {
	gh := &MockFetcher{src: domain.SourceGitHub}
	gh.On("Fetch", mock.Anything, mock.Anything).Return([]domain.Task{
		remote("GH-1", "github:acme/app:1", "one", "2024-01-01T00:00:00Z", domain.StatusTodo),
	}, nil)

	report := newTestManager(gh, panicFetcher{}).Run(context.Background(), bothConfigured(), nil, false)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, domain.SourceLinear, report.Errors[0].Source)
	assert.ErrorIs(t, report.Errors[0], provider.ErrTransport)
	assert.Equal(t, []string{"GH-1"}, report.AddedIDs)
	assert.Equal(t, []domain.Source{domain.SourceGitHub}, report.Succeeded)
}

func TestManager_UnclassifiedErrorBecomesTransport(t *testing.T) {
	gh := &MockFetcher{src: domain.SourceGitHub}
	gh.On("Fetch", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)

	cfg := bothConfigured()
	cfg.Integrations.Linear = nil

	report := newTestManager(gh).Run(context.Background(), cfg, nil, false)

	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0], provider.ErrTransport)
	assert.ErrorIs(t, report.Errors[0], context.DeadlineExceeded)
	assert.Len(t, report.ErrorMessages(), 1)
	assert.Empty(t, report.Succeeded)
}

func TestManager_MergesInFixedOrder(t *testing.T) {
	gh := &MockFetcher{src: domain.SourceGitHub}
	gh.On("Fetch", mock.Anything, mock.Anything).Return([]domain.Task{
		remote("GH-1", "github:acme/app:1", "one", "2024-01-01T00:00:00Z", domain.StatusTodo),
	}, nil)
	ln := &MockFetcher{src: domain.SourceLinear}
	ln.On("Fetch", mock.Anything, mock.Anything).Return([]domain.Task{linearTask(1)}, nil)

	// 登録順に関係なく github → linear の順
	report := newTestManager(ln, gh).Run(context.Background(), bothConfigured(), nil, false)

	require.Len(t, report.Tasks, 2)
	assert.Equal(t, "GH-1", report.Tasks[0].ID)
	assert.Equal(t, "ENG-1", report.Tasks[1].ID)
	assert.NotEmpty(t, report.RunID)
}

func TestManager_NothingDue(t *testing.T) {
	tasks := []domain.Task{{ID: "LOCAL-1", Title: "mine", Source: domain.SourceLocal}}
	cfg := config.Default()

	report := newTestManager().Run(context.Background(), cfg, tasks, false)

	assert.False(t, report.Attempted())
	assert.Equal(t, tasks, report.Tasks)
	assert.Same(t, cfg, report.Config)
}

func TestManager_WatermarkIsFetchStart(t *testing.T) {
	clock := &steppingClock{at: now}
	fetcher := &slowFetcher{clock: clock, step: 10 * time.Second}
	m := NewManager([]provider.Fetcher{fetcher}, &Scheduler{now: clock.now}, zap.NewNop())

	cfg := bothConfigured()
	cfg.Integrations.GitHub = nil

	first := m.Run(context.Background(), cfg, nil, true)
	require.Equal(t, []domain.Source{domain.SourceLinear}, first.Succeeded)
	last, ok := first.Config.LastSync(domain.SourceLinear)
	require.True(t, ok)
	assert.True(t, last.Equal(now), "got %s", last)

	second := m.Run(context.Background(), first.Config, first.Tasks, true)
	require.Empty(t, second.Errors)
	require.Len(t, fetcher.sinces, 2)
	assert.Nil(t, fetcher.sinces[0])
	require.NotNil(t, fetcher.sinces[1])
	assert.True(t, fetcher.sinces[1].Equal(now))

	last, _ = second.Config.LastSync(domain.SourceLinear)
	assert.True(t, last.Equal(now.Add(10*time.Second)))
}
