package domain

import (
	"strconv"
	"strings"
)

// SchemaVersion は保存形式のバージョン
const SchemaVersion = 1

// DataSchemaURL はdata.jsonが参照するスキーマ
const DataSchemaURL = "https://raw.githubusercontent.com/tkc/ttrak/main/data.schema.json"

// Collection は永続化されるタスク一覧
type Collection struct {
	Schema  string `json:"$schema"`
	Version int    `json:"version"`
	Tasks   []Task `json:"tasks"`
}

// NewCollection は空のCollectionを作成する
func NewCollection() *Collection {
	return &Collection{
		Schema:  DataSchemaURL,
		Version: SchemaVersion,
		Tasks:   []Task{},
	}
}

// Clone はタスク列を複製したCollectionを返す
func (c *Collection) Clone() *Collection {
	out := *c
	out.Tasks = CloneTasks(c.Tasks)
	return &out
}

// IndexOf は指定IDのタスク位置を返す。見つからなければ-1
func (c *Collection) IndexOf(id string) int {
	for i := range c.Tasks {
		if c.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// NextLocalID は既存のLOCAL-nの最大値+1のIDを返す
func (c *Collection) NextLocalID() string {
	max := 0
	prefix := LocalPrefix + "-"
	for _, t := range c.Tasks {
		if !strings.HasPrefix(t.ID, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(t.ID, prefix))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return prefix + strconv.Itoa(max+1)
}

// CloneTasks はタスク列を深く複製する
func CloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// Clone はポインタやスライスを共有しないコピーを返す
func (t Task) Clone() Task {
	if t.GitHub != nil {
		gh := *t.GitHub
		t.GitHub = &gh
	}
	if t.Linear != nil {
		ln := *t.Linear
		t.Linear = &ln
	}
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	if t.Tags != nil {
		t.Tags = append([]string(nil), t.Tags...)
	}
	return t
}
