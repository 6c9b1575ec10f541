package domain

import "strings"

// View は一覧のステータスタブ
type View string

const (
	ViewAll        View = "all"
	ViewTodo       View = "todo"
	ViewInProgress View = "inProgress"
	ViewDone       View = "done"
)

// Views はタブの並び順
var Views = []View{ViewAll, ViewTodo, ViewInProgress, ViewDone}

// ParseView は文字列をViewに変換する。不明な値はall
func ParseView(s string) View {
	for _, v := range Views {
		if string(v) == s {
			return v
		}
	}
	return ViewAll
}

// TaskFilter はタスクのフィルタ条件
type TaskFilter struct {
	View  View
	Query string
}

// Match はタスクが条件に合うかを返す
func (f TaskFilter) Match(t *Task) bool {
	if f.View != "" && f.View != ViewAll && string(t.Status) != string(f.View) {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.ID), q) ||
		strings.Contains(strings.ToLower(t.Description), q)
}

// Apply は条件に合うタスクだけを順序を保って返す
func (f TaskFilter) Apply(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for i := range tasks {
		if f.Match(&tasks[i]) {
			out = append(out, tasks[i])
		}
	}
	return out
}
