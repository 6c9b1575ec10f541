package provider

import (
	"context"
	"time"

	"github.com/tkc/ttrak/internal/domain"
)

// Fetcher は外部サービスからタスクを取得するアダプタ
//
// Fetch は since 以降に更新されたアイテムを共通のTask形式で返す。sinceがnilなら全件。
// 返すタスクには Source, ExternalID, メタデータが必ず入っている。
// ローカルの一覧には触れない。
type Fetcher interface {
	Source() domain.Source
	Fetch(ctx context.Context, since *time.Time) ([]domain.Task, error)
}

// Dedupe は同一ExternalIDのタスクを1件にまとめる。
// 位置は最初の出現、内容は最後の出現を採用する。
func Dedupe(tasks []domain.Task) []domain.Task {
	index := make(map[string]int, len(tasks))
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ExternalID == "" {
			out = append(out, t)
			continue
		}
		if i, ok := index[t.ExternalID]; ok {
			out[i] = t
			continue
		}
		index[t.ExternalID] = len(out)
		out = append(out, t)
	}
	return out
}
