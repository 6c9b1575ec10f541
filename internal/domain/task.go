package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status はタスクの状態を表す
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inProgress"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// Statuses は選択可能なStatusを表示順に並べたもの
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone, StatusCancelled}

// cycleOrder はステータス巡回の順序（cancelledは含まない）
var cycleOrder = []Status{StatusTodo, StatusInProgress, StatusDone}

// Next は巡回順で次のStatusを返す
func (s Status) Next() Status {
	for i, st := range cycleOrder {
		if st == s {
			return cycleOrder[(i+1)%len(cycleOrder)]
		}
	}
	// cancelled や未知の値は先頭に戻る
	return cycleOrder[0]
}

// Valid はStatusが既知の値かどうかを返す
func (s Status) Valid() bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// Priority はタスクの優先度を表す
type Priority string

const (
	PriorityNone   Priority = "none"
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities は選択可能なPriorityを表示順に並べたもの
var Priorities = []Priority{PriorityNone, PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// Valid はPriorityが既知の値かどうかを返す
func (p Priority) Valid() bool {
	for _, pr := range Priorities {
		if pr == p {
			return true
		}
	}
	return false
}

// Source はタスクの出所を表す
type Source string

const (
	SourceLocal  Source = "local"
	SourceGitHub Source = "github"
	SourceLinear Source = "linear"
)

// GitHubItemType はGitHubアイテムの種別
type GitHubItemType string

const (
	GitHubIssue       GitHubItemType = "issue"
	GitHubPullRequest GitHubItemType = "pull_request"
)

// GitHubMeta はGitHub由来タスクの付帯情報
type GitHubMeta struct {
	Type           GitHubItemType `json:"type"`
	Number         int            `json:"number"`
	Repo           string         `json:"repo"`
	URL            string         `json:"url"`
	ExternalStatus string         `json:"externalStatus,omitempty"`
	SyncedAt       time.Time      `json:"syncedAt"`
}

// LinearMeta はLinear由来タスクの付帯情報
type LinearMeta struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	TeamID         string    `json:"teamId,omitempty"`
	ExternalStatus string    `json:"externalStatus,omitempty"`
	SyncedAt       time.Time `json:"syncedAt"`
}

// MaxTitleLength はタイトルの最大文字数
const MaxTitleLength = 200

// LocalPrefix はローカルタスクのID接頭辞
const LocalPrefix = "LOCAL"

var idPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*-\d+$`)

// Task は全ソース共通のタスクレコード
type Task struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      Status      `json:"status"`
	Priority    Priority    `json:"priority"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Source      Source      `json:"source"`
	ExternalID  string      `json:"externalId,omitempty"`
	Linear      *LinearMeta `json:"linear,omitempty"`
	GitHub      *GitHubMeta `json:"github,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	DueDate     *time.Time  `json:"dueDate,omitempty"`
}

// IsLocal はローカルで作成されたタスクかどうかを返す
func (t *Task) IsLocal() bool {
	return t.Source == SourceLocal || t.Source == ""
}

// Validate はレコードが保存可能な形かどうかを検証する
func (t *Task) Validate() error {
	if !idPattern.MatchString(t.ID) {
		return fmt.Errorf("invalid task id %q", t.ID)
	}
	if err := ValidateTitle(t.Title); err != nil {
		return err
	}
	if !t.Status.Valid() {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	if t.IsLocal() && t.ExternalID != "" {
		return fmt.Errorf("local task %s must not carry an external id", t.ID)
	}
	if !t.IsLocal() && t.ExternalID == "" {
		return fmt.Errorf("%s task %s has no external id", t.Source, t.ID)
	}
	return nil
}

// ValidateTitle はタイトルが空でなく長すぎないことを確認する
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}
	if len([]rune(title)) > MaxTitleLength {
		return fmt.Errorf("title exceeds %d characters", MaxTitleLength)
	}
	return nil
}

// ClampTitle はリモートのタイトルを保存可能な形に整える
func ClampTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "(untitled)"
	}
	r := []rune(title)
	if len(r) > MaxTitleLength {
		return string(r[:MaxTitleLength-3]) + "..."
	}
	return title
}

// ExternalID はマージキー "<provider>:<scope>:<nativeId>" を組み立てる
func ExternalID(src Source, scope, nativeID string) string {
	return fmt.Sprintf("%s:%s:%s", src, scope, nativeID)
}
