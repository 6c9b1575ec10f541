package linear

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shurcooL/graphql"

	"github.com/tkc/ttrak/internal/domain"
	"github.com/tkc/ttrak/internal/provider"
)

// DefaultEndpoint はLinear GraphQL APIのURL
const DefaultEndpoint = "https://api.linear.app/graphql"

// Client はLinear GraphQL APIクライアント
type Client struct {
	gql *graphql.Client
	rec *provider.Recorder
	now func() time.Time
}

// NewClient は新しいClientを作成する。APIキーはそのままAuthorizationヘッダに載せる
func NewClient(apiKey string) *Client {
	return newClient(apiKey, DefaultEndpoint, nil)
}

func newClient(apiKey, endpoint string, base http.RoundTripper) *Client {
	rec := provider.NewRecorder(base)
	httpClient := &http.Client{
		Transport: &provider.HeaderTransport{
			Base:   rec,
			Header: http.Header{"Authorization": []string{apiKey}},
		},
		Timeout: provider.DefaultTimeout,
	}
	return &Client{
		gql: graphql.NewClient(endpoint, httpClient),
		rec: rec,
		now: time.Now,
	}
}

// Viewer は認証ユーザーのIDと名前を返す。APIキーの検証にも使う
func (c *Client) Viewer(ctx context.Context) (id, name string, err error) {
	var query struct {
		Viewer struct {
			ID   string `graphql:"id"`
			Name string
		}
	}

	if err := c.gql.Query(ctx, &query, nil); err != nil {
		return "", "", c.classify(fmt.Errorf("failed to get viewer: %w", err))
	}
	return query.Viewer.ID, query.Viewer.Name, nil
}

// classify はAPIエラーを種別付きのエラーに変換する
//
// LinearはGraphQLエラーを400で返すことが多いので、ステータスより本文のコードを優先する。
func (c *Client) classify(err error) error {
	msg := err.Error()
	last := c.rec.Last()

	kind := provider.ErrTransport
	switch {
	case strings.Contains(msg, "RATELIMITED"), strings.Contains(strings.ToLower(msg), "rate limit"):
		kind = provider.ErrRateLimited
	case strings.Contains(msg, "AUTHENTICATION_ERROR"), strings.Contains(msg, "Authentication required"),
		strings.Contains(msg, "Invalid API key"):
		kind = provider.ErrAuth
	case strings.Contains(msg, "Entity not found"):
		kind = provider.ErrNotFound
	case last != nil && last.StatusCode == http.StatusUnauthorized:
		kind = provider.ErrAuth
	case last != nil && last.StatusCode == http.StatusTooManyRequests:
		kind = provider.ErrRateLimited
	case last != nil && last.StatusCode == http.StatusNotFound:
		kind = provider.ErrNotFound
	}

	pe := provider.NewError(domain.SourceLinear, kind, err)
	if kind == provider.ErrRateLimited && last != nil {
		pe.RetryAt = provider.ResetTime(last.Header, c.now())
	}
	return pe
}
