package tasklist

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tkc/ttrak/internal/domain"
)

var (
	// ErrValidation は入力が不正なときのエラー
	ErrValidation = errors.New("validation error")
	// ErrNotFound は指定IDのタスクが無いときのエラー
	ErrNotFound = errors.New("task not found")
)

// Saver はタスク一覧の保存先
type Saver interface {
	Save(col *domain.Collection) error
}

// Service はタスク一覧に対するローカル操作を提供する
//
// 全ての変更は保存まで終えてから返る。保存に失敗した場合はメモリ上の変更も
// 取り消すので、画面と保存内容が食い違ったままにならない。
type Service struct {
	mu     sync.Mutex
	col    *domain.Collection
	saver  Saver
	logger *zap.Logger
	now    func() time.Time
}

// NewService は新しいServiceを作成する
func NewService(col *domain.Collection, saver Saver, logger *zap.Logger) *Service {
	if col == nil {
		col = domain.NewCollection()
	}
	return &Service{
		col:    col,
		saver:  saver,
		logger: logger,
		now:    time.Now,
	}
}

// Tasks は一覧の複製を返す
func (s *Service) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneTasks(s.col.Tasks)
}

// Filter は条件に合うタスクを返す
func (s *Service) Filter(f domain.TaskFilter) []domain.Task {
	return f.Apply(s.Tasks())
}

// Get は指定IDのタスクを返す
func (s *Service) Get(id string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.col.IndexOf(id)
	if i < 0 {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.col.Tasks[i].Clone(), nil
}

// Create はローカルタスクを作成して先頭に追加する
func (s *Service) Create(title string, status domain.Status, priority domain.Priority) (domain.Task, error) {
	title = strings.TrimSpace(title)
	if err := validate(title, status, priority); err != nil {
		return domain.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	task := domain.Task{
		ID:        s.col.NextLocalID(),
		Title:     title,
		Status:    status,
		Priority:  priority,
		Source:    domain.SourceLocal,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.commit(func(col *domain.Collection) {
		col.Tasks = append([]domain.Task{task}, col.Tasks...)
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.logger.Debug("task created", zap.String("id", task.ID))
	return task, nil
}

// Update はタイトル・ステータス・優先度を書き換える。ソースや外部IDはそのまま
func (s *Service) Update(id, title string, status domain.Status, priority domain.Priority) (domain.Task, error) {
	title = strings.TrimSpace(title)
	if err := validate(title, status, priority); err != nil {
		return domain.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.col.IndexOf(id)
	if i < 0 {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var updated domain.Task
	err := s.commit(func(col *domain.Collection) {
		t := &col.Tasks[i]
		t.Title = title
		t.Status = status
		t.Priority = priority
		t.UpdatedAt = s.now().UTC()
		updated = t.Clone()
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.logger.Debug("task updated", zap.String("id", id))
	return updated, nil
}

// Delete はタスクを削除する
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.col.IndexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	err := s.commit(func(col *domain.Collection) {
		col.Tasks = append(col.Tasks[:i], col.Tasks[i+1:]...)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("task deleted", zap.String("id", id))
	return nil
}

// CycleStatus はステータスを todo → inProgress → done → todo の順に進める
func (s *Service) CycleStatus(id string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.col.IndexOf(id)
	if i < 0 {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var updated domain.Task
	err := s.commit(func(col *domain.Collection) {
		t := &col.Tasks[i]
		t.Status = t.Status.Next()
		t.UpdatedAt = s.now().UTC()
		updated = t.Clone()
	})
	if err != nil {
		return domain.Task{}, err
	}
	return updated, nil
}

// Replace は一覧全体を fn の結果で置き換えて保存する。同期結果の反映に使う。
//
// fn はロックを保持したまま呼ばれるので、画面操作と同期が交錯しない。
// fn がエラーを返すか保存に失敗した場合は何も変えない。
func (s *Service) Replace(fn func(tasks []domain.Task) ([]domain.Task, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(domain.CloneTasks(s.col.Tasks))
	if err != nil {
		return err
	}
	return s.commit(func(col *domain.Collection) {
		col.Tasks = next
	})
}

// commit は複製に変更を加えて保存し、成功したときだけ差し替える。呼び出し側でロックを持つこと
func (s *Service) commit(mutate func(col *domain.Collection)) error {
	next := s.col.Clone()
	mutate(next)
	if next.Tasks == nil {
		next.Tasks = []domain.Task{}
	}
	if err := s.saver.Save(next); err != nil {
		s.logger.Error("failed to save tasks", zap.Error(err))
		return fmt.Errorf("failed to save tasks: %w", err)
	}
	s.col = next
	return nil
}

func validate(title string, status domain.Status, priority domain.Priority) error {
	if err := domain.ValidateTitle(title); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, status)
	}
	if !priority.Valid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, priority)
	}
	return nil
}
