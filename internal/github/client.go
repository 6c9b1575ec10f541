package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/tkc/ttrak/internal/domain"
	"github.com/tkc/ttrak/internal/provider"
)

// DefaultEndpoint はGitHub GraphQL APIのURL
const DefaultEndpoint = "https://api.github.com/graphql"

// Client はGitHub GraphQL APIクライアント
type Client struct {
	gql *githubv4.Client
	rec *provider.Recorder
	now func() time.Time
}

// NewClient は新しいClientを作成する
func NewClient(token string) *Client {
	return newClient(token, DefaultEndpoint, nil)
}

func newClient(token, endpoint string, base http.RoundTripper) *Client {
	rec := provider.NewRecorder(base)
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: rec})

	src := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := oauth2.NewClient(ctx, src)
	httpClient.Timeout = provider.DefaultTimeout

	return &Client{
		gql: githubv4.NewEnterpriseClient(endpoint, httpClient),
		rec: rec,
		now: time.Now,
	}
}

// Viewer は認証ユーザーのloginを返す。トークンの検証にも使う
func (c *Client) Viewer(ctx context.Context) (string, error) {
	var query struct {
		Viewer struct {
			Login string
		}
	}

	if err := c.gql.Query(ctx, &query, nil); err != nil {
		return "", c.classify(fmt.Errorf("failed to get authenticated user: %w", err))
	}
	return query.Viewer.Login, nil
}

// classify はAPIエラーを種別付きのエラーに変換する
func (c *Client) classify(err error) error {
	msg := err.Error()
	last := c.rec.Last()

	kind := provider.ErrTransport
	var header http.Header
	if last != nil {
		header = last.Header
		switch last.StatusCode {
		case http.StatusUnauthorized:
			kind = provider.ErrAuth
		case http.StatusNotFound:
			kind = provider.ErrNotFound
		case http.StatusForbidden, http.StatusTooManyRequests:
			if last.Header.Get("X-RateLimit-Remaining") == "0" || last.Header.Get("Retry-After") != "" ||
				strings.Contains(strings.ToLower(msg), "rate limit") {
				kind = provider.ErrRateLimited
			} else {
				kind = provider.ErrAuth
			}
		}
	}

	// GraphQLのエラーは200で返ってくる
	if kind == provider.ErrTransport {
		switch {
		case strings.Contains(msg, "RATE_LIMITED"), strings.Contains(msg, "API rate limit exceeded"):
			kind = provider.ErrRateLimited
		case strings.Contains(msg, "Could not resolve to a Repository"):
			kind = provider.ErrNotFound
		case strings.Contains(msg, "not accessible by personal access token"), strings.Contains(msg, "Bad credentials"):
			kind = provider.ErrAuth
		}
	}

	pe := provider.NewError(domain.SourceGitHub, kind, err)
	if kind == provider.ErrRateLimited {
		pe.RetryAt = provider.ResetTime(header, c.now())
	}
	return pe
}
