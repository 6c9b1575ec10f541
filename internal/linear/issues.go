package linear

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shurcooL/graphql"
	"go.uber.org/zap"

	"github.com/tkc/ttrak/internal/config"
	"github.com/tkc/ttrak/internal/domain"
	"github.com/tkc/ttrak/internal/provider"
)

// fallbackPrefix はチーム情報が無いときの表示ID接頭辞
const fallbackPrefix = "LIN"

const (
	pageSize = 50
	maxPages = 20
)

// IssueFilter はLinearのissues(filter:)に渡す条件。型名がそのままGraphQLの型名になる
type IssueFilter struct {
	Assignee  *userFilter     `json:"assignee,omitempty"`
	Team      *teamFilter     `json:"team,omitempty"`
	UpdatedAt *dateComparator `json:"updatedAt,omitempty"`
}

type idComparator struct {
	Eq string `json:"eq"`
}

type userFilter struct {
	ID idComparator `json:"id"`
}

type teamFilter struct {
	ID idComparator `json:"id"`
}

type dateComparator struct {
	Gt time.Time `json:"gt"`
}

type issueNode struct {
	ID          string `graphql:"id"`
	Number      float64
	Title       string
	Description string
	Priority    float64
	URL         string `graphql:"url"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DueDate     string
	State       struct {
		Name string
	}
	Team struct {
		ID  string `graphql:"id"`
		Key string
	}
	Labels struct {
		Nodes []struct {
			Name string
		}
	} `graphql:"labels(first: 20)"`
}

type issuesQuery struct {
	Issues struct {
		Nodes    []issueNode
		PageInfo struct {
			HasNextPage bool
			EndCursor   string
		}
	} `graphql:"issues(first: $first, after: $after, filter: $filter)"`
}

// Adapter はLinearのIssueをタスクとして取得する
type Adapter struct {
	cfg    config.LinearConfig
	client *Client
	logger *zap.Logger
	now    func() time.Time
}

// NewAdapter は新しいAdapterを作成する
func NewAdapter(cfg config.LinearConfig, logger *zap.Logger) *Adapter {
	return newAdapter(cfg, NewClient(cfg.APIKey), logger)
}

func newAdapter(cfg config.LinearConfig, client *Client, logger *zap.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("provider", string(domain.SourceLinear))),
		now:    time.Now,
	}
}

// Source implements provider.Fetcher.
func (a *Adapter) Source() domain.Source {
	return domain.SourceLinear
}

// Fetch implements provider.Fetcher.
func (a *Adapter) Fetch(ctx context.Context, since *time.Time) ([]domain.Task, error) {
	filter := IssueFilter{}
	if a.cfg.OnlyAssigned() {
		viewerID, _, err := a.client.Viewer(ctx)
		if err != nil {
			return nil, err
		}
		filter.Assignee = &userFilter{ID: idComparator{Eq: viewerID}}
	}
	if a.cfg.TeamID != "" {
		filter.Team = &teamFilter{ID: idComparator{Eq: a.cfg.TeamID}}
	}
	if since != nil {
		filter.UpdatedAt = &dateComparator{Gt: since.UTC()}
	}

	nodes, err := a.client.issues(ctx, filter)
	if err != nil {
		return nil, err
	}

	syncedAt := a.now().UTC()
	tasks := make([]domain.Task, 0, len(nodes))
	for _, n := range nodes {
		tasks = append(tasks, toTask(n, syncedAt))
	}
	tasks = provider.Dedupe(tasks)

	a.logger.Debug("fetched issues", zap.Int("count", len(tasks)))
	return tasks, nil
}

func (c *Client) issues(ctx context.Context, filter IssueFilter) ([]issueNode, error) {
	variables := map[string]interface{}{
		"first":  graphql.Int(pageSize),
		"after":  (*graphql.String)(nil),
		"filter": filter,
	}

	var nodes []issueNode
	for page := 0; page < maxPages; page++ {
		var query issuesQuery
		if err := c.gql.Query(ctx, &query, variables); err != nil {
			return nil, c.classify(fmt.Errorf("failed to query issues: %w", err))
		}
		nodes = append(nodes, query.Issues.Nodes...)

		if !query.Issues.PageInfo.HasNextPage || query.Issues.PageInfo.EndCursor == "" {
			return nodes, nil
		}
		cursor := graphql.String(query.Issues.PageInfo.EndCursor)
		variables["after"] = &cursor
	}
	return nil, provider.Truncated(domain.SourceLinear, maxPages)
}

// toTask はLinearのIssueを共通のTaskに変換する
func toTask(n issueNode, syncedAt time.Time) domain.Task {
	prefix := strings.ToUpper(n.Team.Key)
	if prefix == "" {
		prefix = fallbackPrefix
	}

	var tags []string
	for _, l := range n.Labels.Nodes {
		tags = append(tags, l.Name)
	}

	t := domain.Task{
		ID:          prefix + "-" + strconv.Itoa(int(n.Number)),
		Title:       domain.ClampTitle(n.Title),
		Description: n.Description,
		Status:      mapStatus(n.State.Name),
		Priority:    mapPriority(n.Priority),
		Source:      domain.SourceLinear,
		ExternalID:  domain.ExternalID(domain.SourceLinear, n.Team.ID, n.ID),
		CreatedAt:   n.CreatedAt.UTC(),
		UpdatedAt:   n.UpdatedAt.UTC(),
		Linear: &domain.LinearMeta{
			ID:             n.ID,
			URL:            n.URL,
			TeamID:         n.Team.ID,
			ExternalStatus: n.State.Name,
			SyncedAt:       syncedAt,
		},
		Tags: tags,
	}
	if n.DueDate != "" {
		if due, err := time.Parse("2006-01-02", n.DueDate); err == nil {
			t.DueDate = &due
		}
	}
	return t
}

// mapPriority はLinearの優先度（0-4）をPriorityに変換する
func mapPriority(p float64) domain.Priority {
	switch int(p) {
	case 1:
		return domain.PriorityUrgent
	case 2:
		return domain.PriorityHigh
	case 3:
		return domain.PriorityMedium
	case 4:
		return domain.PriorityLow
	default:
		return domain.PriorityNone
	}
}

// mapStatus はワークフロー状態名をStatusに変換する
func mapStatus(state string) domain.Status {
	s := strings.ToLower(state)
	switch {
	case strings.Contains(s, "backlog"), strings.Contains(s, "todo"):
		return domain.StatusTodo
	case strings.Contains(s, "progress"), strings.Contains(s, "review"):
		return domain.StatusInProgress
	case strings.Contains(s, "done"), strings.Contains(s, "complete"):
		return domain.StatusDone
	case strings.Contains(s, "cancel"):
		return domain.StatusCancelled
	default:
		return domain.StatusTodo
	}
}
