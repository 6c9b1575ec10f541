package provider

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultTimeout はAPI呼び出し1回あたりのタイムアウト
const DefaultTimeout = 30 * time.Second

// ResponseInfo は直近のHTTPレスポンスの要約
type ResponseInfo struct {
	StatusCode int
	Header     http.Header
}

// Recorder は直近のレスポンスのステータスとヘッダを記録するRoundTripper。
// GraphQLクライアントはステータスを捨ててしまうので、エラー分類に使う。
type Recorder struct {
	Base http.RoundTripper

	mu   sync.Mutex
	last *ResponseInfo
}

// NewRecorder はbaseを包むRecorderを作成する。baseがnilならDefaultTransport
func NewRecorder(base http.RoundTripper) *Recorder {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Recorder{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (r *Recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.last = &ResponseInfo{StatusCode: resp.StatusCode, Header: resp.Header.Clone()}
	r.mu.Unlock()
	return resp, nil
}

// Last は直近のレスポンスを返す。まだ無ければnil
func (r *Recorder) Last() *ResponseInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// HeaderTransport は全リクエストに固定ヘッダを付ける
type HeaderTransport struct {
	Base   http.RoundTripper
	Header http.Header
}

// RoundTrip implements http.RoundTripper.
func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, vs := range t.Header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	return t.Base.RoundTrip(req)
}

// ResetTime はレート制限ヘッダから解除時刻を読み取る
//
// Retry-After（秒）、X-RateLimit-Reset（epoch秒）、X-RateLimit-Requests-Reset
// （epochミリ秒）の順に見る。
func ResetTime(h http.Header, now time.Time) time.Time {
	if h == nil {
		return time.Time{}
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(secs, 0)
		}
	}
	if v := h.Get("X-RateLimit-Requests-Reset"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return time.Time{}
}
