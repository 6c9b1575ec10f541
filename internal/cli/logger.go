package cli

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const logFileName = "ttrak.log"

// newLogger はdir/ttrak.logに書き出すロガーを作成する。
// 端末は一覧表示が使うので標準出力には書かない。開けなければ何も出さない。
func newLogger(dir string, debug bool) *zap.Logger {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return zap.NewNop()
	}

	path := filepath.Join(dir, logFileName)
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
