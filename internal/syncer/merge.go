package syncer

import (
	"github.com/tkc/ttrak/internal/domain"
	"github.com/tkc/ttrak/internal/provider"
)

// MergeResult はマージ結果
type MergeResult struct {
	Tasks      []domain.Task
	AddedIDs   []string // 追加したタスクの表示ID
	UpdatedIDs []string // 更新したタスクのExternalID
}

// Changed は何か変更があったかを返す
func (r MergeResult) Changed() bool {
	return len(r.AddedIDs) > 0 || len(r.UpdatedIDs) > 0
}

// Merge は取得したタスクを既存の一覧に反映した新しい一覧を返す。current は変更しない。
//
// ExternalIDが一致する既存タスクが無ければ末尾に追加する。
// 一致して incoming の UpdatedAt が厳密に新しい場合だけ置き換え、Status と Priority は既存の値を残す。
// 同じバッチ内で ExternalID が重複したら後に出たものを採用する。
func Merge(current, incoming []domain.Task) MergeResult {
	tasks := domain.CloneTasks(current)

	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if t.ExternalID != "" {
			index[t.ExternalID] = i
		}
	}

	res := MergeResult{}
	for _, in := range provider.Dedupe(incoming) {
		if in.ExternalID == "" {
			continue
		}

		i, ok := index[in.ExternalID]
		if !ok {
			index[in.ExternalID] = len(tasks)
			tasks = append(tasks, in.Clone())
			res.AddedIDs = append(res.AddedIDs, in.ID)
			continue
		}

		existing := tasks[i]
		if !in.UpdatedAt.After(existing.UpdatedAt) {
			continue
		}

		updated := in.Clone()
		updated.Status = existing.Status
		updated.Priority = existing.Priority
		tasks[i] = updated
		res.UpdatedIDs = append(res.UpdatedIDs, in.ExternalID)
	}

	res.Tasks = tasks
	return res
}
