package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/tkc/ttrak/internal/domain"
)

const dataFileName = "data.json"

// FileStore はタスク一覧をJSONファイルに保存する
type FileStore struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// NewFileStore は dir/data.json を扱うFileStoreを作成する
func NewFileStore(dir string, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:   filepath.Join(dir, dataFileName),
		logger: logger,
		now:    time.Now,
	}
}

// Path はデータファイルのパスを返す
func (s *FileStore) Path() string {
	return s.path
}

// Load はタスク一覧を読み込む
//
// ファイルが無ければ空の一覧を返す。中身が壊れている場合は退避してから
// 空の一覧で続行するので、次の保存で元データが消えることはない。
func (s *FileStore) Load() (*domain.Collection, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewCollection(), nil
		}
		return nil, fmt.Errorf("failed to read data store: %w", err)
	}

	col, err := decode(data)
	if err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
		s.logger.Warn("invalid data store, starting empty",
			zap.String("path", s.path),
			zap.String("backup", backup),
			zap.Error(err),
		)
		if rerr := os.Rename(s.path, backup); rerr != nil {
			return nil, fmt.Errorf("failed to move aside invalid data store: %w", rerr)
		}
		return domain.NewCollection(), nil
	}
	return col, nil
}

func decode(data []byte) (*domain.Collection, error) {
	col := domain.NewCollection()
	if err := json.Unmarshal(data, col); err != nil {
		return nil, err
	}
	if col.Version == 0 {
		col.Version = domain.SchemaVersion
	}
	if col.Version > domain.SchemaVersion {
		return nil, fmt.Errorf("unsupported data version %d", col.Version)
	}
	if col.Tasks == nil {
		col.Tasks = []domain.Task{}
	}

	seen := make(map[string]bool)
	for i := range col.Tasks {
		t := &col.Tasks[i]
		if t.Source == "" {
			t.Source = domain.SourceLocal
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		if t.ExternalID == "" {
			continue
		}
		if seen[t.ExternalID] {
			return nil, fmt.Errorf("duplicate external id %s", t.ExternalID)
		}
		seen[t.ExternalID] = true
	}
	return col, nil
}

// Save はタスク一覧を保存する
func (s *FileStore) Save(col *domain.Collection) error {
	out := *col
	out.Schema = domain.DataSchemaURL
	if out.Version == 0 {
		out.Version = domain.SchemaVersion
	}
	if out.Tasks == nil {
		out.Tasks = []domain.Task{}
	}

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data store: %w", err)
	}
	if err := WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to save data store: %w", err)
	}
	return nil
}
