package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tkc/ttrak/internal/config"
	"github.com/tkc/ttrak/internal/domain"
	"github.com/tkc/ttrak/internal/provider"
)

type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// fakeGitHub はクエリの種類ごとに固定レスポンスを返すGraphQLサーバー
type fakeGitHub struct {
	t        *testing.T
	mu       sync.Mutex
	requests []gqlRequest
	handle   func(w http.ResponseWriter, req gqlRequest)
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "Bearer test-token", r.Header.Get("Authorization"))

	body, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)
	var req gqlRequest
	require.NoError(f.t, json.Unmarshal(body, &req))

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	f.handle(w, req)
}

func newTestAdapter(t *testing.T, cfg config.GitHubConfig, handle func(w http.ResponseWriter, req gqlRequest)) (*Adapter, *fakeGitHub) {
	fake := &fakeGitHub{t: t, handle: handle}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := newClient("test-token", srv.URL, nil)
	client.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	a := newAdapter(cfg, client, zap.NewNop())
	a.now = func() time.Time { return time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC) }
	return a, fake
}

const issuesPage = `{"data":{"repository":{"issues":{
  "nodes":[
    {"number":5,"title":"Fix bug","body":"crash","state":"OPEN","url":"https://github.com/acme/app/issues/5",
     "createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-02T00:00:00Z",
     "labels":{"nodes":[{"name":"bug"},{"name":"Priority: High"}]}},
    {"number":6,"title":"Old thing","body":"","state":"CLOSED","url":"https://github.com/acme/app/issues/6",
     "createdAt":"2023-12-01T00:00:00Z","updatedAt":"2023-12-02T00:00:00Z",
     "labels":{"nodes":[]}}
  ],
  "pageInfo":{"hasNextPage":false,"endCursor":"c1"}}}}}`

func TestAdapter_FetchAllIssues(t *testing.T) {
	a, fake := newTestAdapter(t, config.GitHubConfig{Token: "test-token", Repo: "acme/app"},
		func(w http.ResponseWriter, req gqlRequest) {
			io.WriteString(w, issuesPage)
		})

	since := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	tasks, err := a.Fetch(context.Background(), &since)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	first := tasks[0]
	assert.Equal(t, "GH-5", first.ID)
	assert.Equal(t, "Fix bug", first.Title)
	assert.Equal(t, "crash", first.Description)
	assert.Equal(t, domain.StatusTodo, first.Status)
	assert.Equal(t, domain.PriorityHigh, first.Priority)
	assert.Equal(t, domain.SourceGitHub, first.Source)
	assert.Equal(t, "github:acme/app:5", first.ExternalID)
	assert.Equal(t, []string{"bug", "Priority: High"}, first.Tags)
	assert.True(t, first.UpdatedAt.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, first.GitHub)
	assert.Equal(t, domain.GitHubIssue, first.GitHub.Type)
	assert.Equal(t, "open", first.GitHub.ExternalStatus)
	assert.Equal(t, "acme/app", first.GitHub.Repo)
	assert.True(t, first.GitHub.SyncedAt.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, domain.StatusDone, tasks[1].Status)
	assert.Equal(t, domain.PriorityNone, tasks[1].Priority)
	assert.Nil(t, tasks[1].Tags)

	require.Len(t, fake.requests, 1)
	assert.Contains(t, fake.requests[0].Query, "repository(owner: $owner, name: $name)")
	assert.Equal(t, "acme", fake.requests[0].Variables["owner"])
	filter, ok := fake.requests[0].Variables["filter"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "2023-11-01T00:00:00Z", filter["since"])
	assert.NotContains(t, filter, "assignee")
}

func TestAdapter_FetchPaginates(t *testing.T) {
	page := 0
	a, fake := newTestAdapter(t, config.GitHubConfig{Token: "test-token", Repo: "acme/app"},
		func(w http.ResponseWriter, req gqlRequest) {
			page++
			if page == 1 {
				io.WriteString(w, `{"data":{"repository":{"issues":{"nodes":[
					{"number":1,"title":"one","state":"OPEN","url":"u1","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z","labels":{"nodes":[]}}
				],"pageInfo":{"hasNextPage":true,"endCursor":"next"}}}}}`)
				return
			}
			io.WriteString(w, `{"data":{"repository":{"issues":{"nodes":[
				{"number":2,"title":"two","state":"OPEN","url":"u2","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z","labels":{"nodes":[]}}
			],"pageInfo":{"hasNextPage":false,"endCursor":""}}}}}`)
		})

	tasks, err := a.Fetch(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "GH-1", tasks[0].ID)
	assert.Equal(t, "GH-2", tasks[1].ID)

	require.Len(t, fake.requests, 2)
	assert.Nil(t, fake.requests[0].Variables["cursor"])
	assert.Equal(t, "next", fake.requests[1].Variables["cursor"])
}

func TestAdapter_FetchFailsWhenPagesRunOut(t *testing.T) {
	a, fake := newTestAdapter(t, config.GitHubConfig{Token: "test-token", Repo: "acme/app"},
		func(w http.ResponseWriter, req gqlRequest) {
			io.WriteString(w, `{"data":{"repository":{"issues":{"nodes":[
				{"number":1,"title":"one","state":"OPEN","url":"u1","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z","labels":{"nodes":[]}}
			],"pageInfo":{"hasNextPage":true,"endCursor":"more"}}}}}`)
		})

	tasks, err := a.Fetch(context.Background(), nil)
	assert.Nil(t, tasks)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrTransport)
	assert.ErrorIs(t, err, provider.ErrTruncated)
	assert.Len(t, fake.requests, maxPages)
}

func TestAdapter_ExternalIDIgnoresRepoCase(t *testing.T) {
	handle := func(w http.ResponseWriter, req gqlRequest) {
		io.WriteString(w, issuesPage)
	}
	lower, _ := newTestAdapter(t, config.GitHubConfig{Token: "test-token", Repo: "acme/app"}, handle)
	mixed, _ := newTestAdapter(t, config.GitHubConfig{Token: "test-token", Repo: "Acme/App"}, handle)

	want, err := lower.Fetch(context.Background(), nil)
	require.NoError(t, err)
	got, err := mixed.Fetch(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ExternalID, got[i].ExternalID)
	}
	assert.Equal(t, "github:acme/app:5", got[0].ExternalID)
}

func TestAdapter_FetchAssignedAndAuthored(t *testing.T) {
	cfg := config.GitHubConfig{
		Token:              "test-token",
		Repo:               "acme/app",
		SyncAssignedIssues: true,
		SyncAuthoredPRs:    true,
	}
	a, fake := newTestAdapter(t, cfg, func(w http.ResponseWriter, req gqlRequest) {
		switch {
		case strings.Contains(req.Query, "viewer"):
			io.WriteString(w, `{"data":{"viewer":{"login":"octocat"}}}`)
		case strings.Contains(req.Query, "repository("):
			io.WriteString(w, issuesPage)
		case strings.Contains(req.Query, "search("):
			io.WriteString(w, `{"data":{"search":{"nodes":[
				{"number":9,"title":"Add feature","body":"","state":"MERGED","url":"https://github.com/acme/app/pull/9",
				 "createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-03T00:00:00Z","labels":{"nodes":[{"name":"urgent"}]}},
				{}
			],"pageInfo":{"hasNextPage":false,"endCursor":""}}}}`)
		default:
			assert.Failf(t, "unexpected query", "%s", req.Query)
		}
	})

	tasks, err := a.Fetch(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	pr := tasks[2]
	assert.Equal(t, "GH-9", pr.ID)
	assert.Equal(t, domain.GitHubPullRequest, pr.GitHub.Type)
	assert.Equal(t, domain.StatusDone, pr.Status)
	assert.Equal(t, domain.PriorityUrgent, pr.Priority)
	assert.Equal(t, "merged", pr.GitHub.ExternalStatus)

	require.Len(t, fake.requests, 3)
	filter := fake.requests[1].Variables["filter"].(map[string]interface{})
	assert.Equal(t, "octocat", filter["assignee"])
	assert.Equal(t, "is:pr author:octocat repo:acme/app", fake.requests[2].Variables["query"])
}

func TestAdapter_FetchDedupesOverlappingQueries(t *testing.T) {
	cfg := config.GitHubConfig{Token: "test-token", Repo: "acme/app", SyncAssignedIssues: true, SyncAuthoredPRs: true}
	a, _ := newTestAdapter(t, cfg, func(w http.ResponseWriter, req gqlRequest) {
		switch {
		case strings.Contains(req.Query, "viewer"):
			io.WriteString(w, `{"data":{"viewer":{"login":"octocat"}}}`)
		case strings.Contains(req.Query, "repository("):
			io.WriteString(w, issuesPage)
		default:
			io.WriteString(w, `{"data":{"search":{"nodes":[
				{"number":5,"title":"Fix bug (pr view)","state":"OPEN","url":"u","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-02T00:00:00Z","labels":{"nodes":[]}}
			],"pageInfo":{"hasNextPage":false,"endCursor":""}}}}`)
		}
	})

	tasks, err := a.Fetch(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "GH-5", tasks[0].ID)
	assert.Equal(t, "Fix bug (pr view)", tasks[0].Title)
}

func TestAdapter_FetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handle  func(w http.ResponseWriter, req gqlRequest)
		kind    error
		retryAt time.Time
	}{
		{
			name: "unauthorized",
			handle: func(w http.ResponseWriter, req gqlRequest) {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"message":"Bad credentials"}`)
			},
			kind: provider.ErrAuth,
		},
		{
			name: "rate limited by status",
			handle: func(w http.ResponseWriter, req gqlRequest) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", "1704070800")
				w.WriteHeader(http.StatusForbidden)
				io.WriteString(w, `{"message":"API rate limit exceeded"}`)
			},
			kind:    provider.ErrRateLimited,
			retryAt: time.Unix(1704070800, 0),
		},
		{
			name: "rate limited by graphql error",
			handle: func(w http.ResponseWriter, req gqlRequest) {
				io.WriteString(w, `{"data":null,"errors":[{"type":"RATE_LIMITED","message":"API rate limit exceeded for user"}]}`)
			},
			kind: provider.ErrRateLimited,
		},
		{
			name: "missing repository",
			handle: func(w http.ResponseWriter, req gqlRequest) {
				io.WriteString(w, `{"data":{"repository":null},"errors":[{"type":"NOT_FOUND","message":"Could not resolve to a Repository with the name 'acme/app'."}]}`)
			},
			kind: provider.ErrNotFound,
		},
		{
			name: "server error",
			handle: func(w http.ResponseWriter, req gqlRequest) {
				w.WriteHeader(http.StatusBadGateway)
			},
			kind: provider.ErrTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAdapter(t, config.GitHubConfig{Token: "test-token", Repo: "acme/app"}, tt.handle)

			tasks, err := a.Fetch(context.Background(), nil)
			require.Error(t, err)
			assert.Nil(t, tasks)
			assert.ErrorIs(t, err, tt.kind)

			var pe *provider.Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, domain.SourceGitHub, pe.Source)
			assert.True(t, pe.RetryAt.Equal(tt.retryAt), "retry at %s", pe.RetryAt)
		})
	}
}

func TestAdapter_InvalidRepo(t *testing.T) {
	a, fake := newTestAdapter(t, config.GitHubConfig{Token: "test-token", Repo: "acme"},
		func(w http.ResponseWriter, req gqlRequest) {})

	_, err := a.Fetch(context.Background(), nil)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	assert.Empty(t, fake.requests)
}

func TestInferPriority(t *testing.T) {
	tests := []struct {
		labels []string
		want   domain.Priority
	}{
		{[]string{"Critical"}, domain.PriorityUrgent},
		{[]string{"low", "HIGH"}, domain.PriorityHigh},
		{[]string{"prio:medium"}, domain.PriorityMedium},
		{[]string{"low-hanging"}, domain.PriorityLow},
		{[]string{"bug"}, domain.PriorityNone},
		{nil, domain.PriorityNone},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, inferPriority(tt.labels), "%v", tt.labels)
	}
}

func TestClient_Viewer(t *testing.T) {
	fake := &fakeGitHub{t: t, handle: func(w http.ResponseWriter, req gqlRequest) {
		io.WriteString(w, `{"data":{"viewer":{"login":"octocat"}}}`)
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	login, err := newClient("test-token", srv.URL, nil).Viewer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "octocat", login)
}
