package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"

	"github.com/tkc/ttrak/internal/config"
	"github.com/tkc/ttrak/internal/domain"
	"github.com/tkc/ttrak/internal/provider"
)

// IDPrefix はGitHubタスクの表示ID接頭辞
const IDPrefix = "GH"

// maxPages は1回の取得で辿るページ数の上限（100件/ページ）
const maxPages = 10

// item はIssue/PRの共通部分
type item struct {
	Type      domain.GitHubItemType
	Number    int
	Title     string
	Body      string
	State     string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
	Labels    []string
}

type labelNodes struct {
	Nodes []struct {
		Name string
	}
}

type pageInfo struct {
	HasNextPage bool
	EndCursor   githubv4.String
}

// Adapter はGitHubのIssue/PRをタスクとして取得する
type Adapter struct {
	cfg    config.GitHubConfig
	client *Client
	logger *zap.Logger
	now    func() time.Time
}

// NewAdapter は新しいAdapterを作成する
func NewAdapter(cfg config.GitHubConfig, logger *zap.Logger) *Adapter {
	return newAdapter(cfg, NewClient(cfg.Token), logger)
}

func newAdapter(cfg config.GitHubConfig, client *Client, logger *zap.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("provider", string(domain.SourceGitHub))),
		now:    time.Now,
	}
}

// Source implements provider.Fetcher.
func (a *Adapter) Source() domain.Source {
	return domain.SourceGitHub
}

// Fetch implements provider.Fetcher.
//
// フィルタ未指定ならリポジトリの全Issue（PRを除く）を取得する。
// syncAssignedIssues なら自分に割り当てられたIssue、syncAuthoredPRs なら自分が作成したPRを取得する。
func (a *Adapter) Fetch(ctx context.Context, since *time.Time) ([]domain.Task, error) {
	owner, name, err := splitRepo(a.cfg.Repo)
	if err != nil {
		return nil, provider.NewError(domain.SourceGitHub, provider.ErrNotFound, err)
	}

	var items []item
	if a.cfg.SyncAssignedIssues || a.cfg.SyncAuthoredPRs {
		login, err := a.client.Viewer(ctx)
		if err != nil {
			return nil, err
		}

		if a.cfg.SyncAssignedIssues {
			issues, err := a.client.repoIssues(ctx, owner, name, login, since)
			if err != nil {
				return nil, err
			}
			items = append(items, issues...)
		}

		if a.cfg.SyncAuthoredPRs {
			prs, err := a.client.authoredPRs(ctx, owner, name, login, since)
			if err != nil {
				return nil, err
			}
			items = append(items, prs...)
		}
	} else {
		issues, err := a.client.repoIssues(ctx, owner, name, "", since)
		if err != nil {
			return nil, err
		}
		items = issues
	}

	syncedAt := a.now().UTC()
	tasks := make([]domain.Task, 0, len(items))
	for _, it := range items {
		tasks = append(tasks, toTask(it, a.cfg.Repo, syncedAt))
	}
	tasks = provider.Dedupe(tasks)

	a.logger.Debug("fetched items", zap.Int("count", len(tasks)))
	return tasks, nil
}

type issuesQuery struct {
	Repository struct {
		Issues struct {
			Nodes []struct {
				Number    int
				Title     string
				Body      string
				State     githubv4.IssueState
				URL       string `graphql:"url"`
				CreatedAt githubv4.DateTime
				UpdatedAt githubv4.DateTime
				Labels    labelNodes `graphql:"labels(first: 20)"`
			}
			PageInfo pageInfo
		} `graphql:"issues(first: 100, after: $cursor, filterBy: $filter, orderBy: {field: UPDATED_AT, direction: DESC})"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

type pullRequestSearch struct {
	Search struct {
		Nodes []struct {
			PullRequest struct {
				Number    int
				Title     string
				Body      string
				State     githubv4.PullRequestState
				URL       string `graphql:"url"`
				CreatedAt githubv4.DateTime
				UpdatedAt githubv4.DateTime
				Labels    labelNodes `graphql:"labels(first: 20)"`
			} `graphql:"... on PullRequest"`
		}
		PageInfo pageInfo
	} `graphql:"search(query: $query, type: ISSUE, first: 100, after: $cursor)"`
}

func (c *Client) repoIssues(ctx context.Context, owner, name, assignee string, since *time.Time) ([]item, error) {
	filter := githubv4.IssueFilters{}
	if since != nil {
		filter.Since = &githubv4.DateTime{Time: since.UTC()}
	}
	if assignee != "" {
		filter.Assignee = githubv4.NewString(githubv4.String(assignee))
	}

	variables := map[string]interface{}{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(name),
		"filter": filter,
		"cursor": (*githubv4.String)(nil),
	}

	var items []item
	for page := 0; page < maxPages; page++ {
		var query issuesQuery
		if err := c.gql.Query(ctx, &query, variables); err != nil {
			return nil, c.classify(fmt.Errorf("failed to query issues: %w", err))
		}

		for _, n := range query.Repository.Issues.Nodes {
			items = append(items, item{
				Type:      domain.GitHubIssue,
				Number:    n.Number,
				Title:     n.Title,
				Body:      n.Body,
				State:     strings.ToLower(string(n.State)),
				URL:       n.URL,
				CreatedAt: n.CreatedAt.Time,
				UpdatedAt: n.UpdatedAt.Time,
				Labels:    labelNames(n.Labels),
			})
		}

		if !query.Repository.Issues.PageInfo.HasNextPage {
			return items, nil
		}
		variables["cursor"] = githubv4.NewString(query.Repository.Issues.PageInfo.EndCursor)
	}
	return nil, provider.Truncated(domain.SourceGitHub, maxPages)
}

func (c *Client) authoredPRs(ctx context.Context, owner, name, login string, since *time.Time) ([]item, error) {
	q := fmt.Sprintf("is:pr author:%s repo:%s/%s", login, owner, name)
	if since != nil {
		q += " updated:>=" + since.UTC().Format(time.RFC3339)
	}

	variables := map[string]interface{}{
		"query":  githubv4.String(q),
		"cursor": (*githubv4.String)(nil),
	}

	var items []item
	for page := 0; page < maxPages; page++ {
		var query pullRequestSearch
		if err := c.gql.Query(ctx, &query, variables); err != nil {
			return nil, c.classify(fmt.Errorf("failed to search pull requests: %w", err))
		}

		for _, n := range query.Search.Nodes {
			pr := n.PullRequest
			if pr.Number == 0 {
				continue
			}
			items = append(items, item{
				Type:      domain.GitHubPullRequest,
				Number:    pr.Number,
				Title:     pr.Title,
				Body:      pr.Body,
				State:     strings.ToLower(string(pr.State)),
				URL:       pr.URL,
				CreatedAt: pr.CreatedAt.Time,
				UpdatedAt: pr.UpdatedAt.Time,
				Labels:    labelNames(pr.Labels),
			})
		}

		if !query.Search.PageInfo.HasNextPage {
			return items, nil
		}
		variables["cursor"] = githubv4.NewString(query.Search.PageInfo.EndCursor)
	}
	return nil, provider.Truncated(domain.SourceGitHub, maxPages)
}

func labelNames(l labelNodes) []string {
	if len(l.Nodes) == 0 {
		return nil
	}
	names := make([]string, 0, len(l.Nodes))
	for _, n := range l.Nodes {
		names = append(names, n.Name)
	}
	return names
}

// toTask はIssue/PRを共通のTaskに変換する
func toTask(it item, repo string, syncedAt time.Time) domain.Task {
	// owner/repo は大文字小文字を区別しないので、マージキーは小文字に揃える
	scope := strings.ToLower(repo)
	return domain.Task{
		ID:          IDPrefix + "-" + strconv.Itoa(it.Number),
		Title:       domain.ClampTitle(it.Title),
		Description: it.Body,
		Status:      mapStatus(it.State),
		Priority:    inferPriority(it.Labels),
		Source:      domain.SourceGitHub,
		ExternalID:  domain.ExternalID(domain.SourceGitHub, scope, strconv.Itoa(it.Number)),
		CreatedAt:   it.CreatedAt.UTC(),
		UpdatedAt:   it.UpdatedAt.UTC(),
		GitHub: &domain.GitHubMeta{
			Type:           it.Type,
			Number:         it.Number,
			Repo:           repo,
			URL:            it.URL,
			ExternalStatus: it.State,
			SyncedAt:       syncedAt,
		},
		Tags: it.Labels,
	}
}

// mapStatus はGitHubの状態をStatusに変換する
func mapStatus(state string) domain.Status {
	if state == "open" {
		return domain.StatusTodo
	}
	// closed / merged
	return domain.StatusDone
}

// inferPriority はラベル名から優先度を推定する
func inferPriority(labels []string) domain.Priority {
	has := func(words ...string) bool {
		for _, l := range labels {
			l = strings.ToLower(l)
			for _, w := range words {
				if strings.Contains(l, w) {
					return true
				}
			}
		}
		return false
	}

	switch {
	case has("urgent", "critical"):
		return domain.PriorityUrgent
	case has("high"):
		return domain.PriorityHigh
	case has("medium"):
		return domain.PriorityMedium
	case has("low"):
		return domain.PriorityLow
	default:
		return domain.PriorityNone
	}
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repo format: %s. Expected \"owner/repo\"", repo)
	}
	return owner, name, nil
}
