package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tkc/ttrak/internal/domain"
)

// エラー種別。errors.Is で判定する
var (
	ErrAuth        = errors.New("authentication failed")
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrTransport   = errors.New("transport error")
)

// Error は1サービスの同期失敗を表す
type Error struct {
	Source  domain.Source
	Kind    error     // ErrAuth などのいずれか
	RetryAt time.Time // レート制限の解除予定。不明ならゼロ値
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Source, e.Kind)
	if !e.RetryAt.IsZero() {
		msg += fmt.Sprintf(" (resets at %s)", e.RetryAt.UTC().Format(time.RFC3339))
	}
	if e.Err != nil && e.Err != e.Kind {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は種別と元のエラーの両方を返す
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError は種別付きのエラーを作成する
func NewError(src domain.Source, kind error, err error) *Error {
	return &Error{Source: src, Kind: kind, Err: err}
}

// ErrTruncated は取得がページ数の上限で打ち切られたことを表す
var ErrTruncated = errors.New("result truncated")

// Truncated は上限まで辿っても続きがあったときのエラー。
// 一部だけで同期済みにすると取得していない分を以後取りこぼすので、取得失敗として返す。
func Truncated(src domain.Source, pages int) *Error {
	return NewError(src, ErrTransport, fmt.Errorf("%w after %d pages", ErrTruncated, pages))
}

// AsError は任意のエラーを *Error に揃える。分類できないものは ErrTransport
func AsError(src domain.Source, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(src, ErrTransport, err)
	}
	for _, kind := range []error{ErrAuth, ErrNotFound, ErrRateLimited, ErrTransport} {
		if errors.Is(err, kind) {
			return NewError(src, kind, err)
		}
	}
	return NewError(src, ErrTransport, err)
}
