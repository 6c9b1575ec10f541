package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tkc/ttrak/internal/store"
)

const (
	configFileName     = "config.json"
	yamlConfigFileName = "config.yaml"
	appDirName         = "ttrak"
)

// 環境変数
const (
	EnvHome        = "TTRAK_HOME"
	EnvGitHubToken = "GITHUB_TOKEN"
	EnvLinearKey   = "LINEAR_API_KEY"
)

// Dir は設定とデータを置くディレクトリを返す
func Dir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}
	return filepath.Join(home, ".config", appDirName), nil
}

// Path は設定ファイルのパスを返す
func Path(dir string) string {
	return filepath.Join(dir, configFileName)
}

// Load は設定ファイルを読み込む
//
// ファイルが無ければデフォルトを書き出して返す。壊れている場合はログを残して
// デフォルトで続行する。config.jsonが無くconfig.yamlがあればそちらを読む。
func Load(dir string, logger *zap.Logger) (*Config, error) {
	path := Path(dir)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if cfg, ok := loadYAML(dir, logger); ok {
			return cfg, nil
		}
		cfg := Default()
		if err := cfg.Save(dir); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		logger.Warn("invalid config, using defaults", zap.String("path", path), zap.Error(err))
		return Default(), nil
	}
	cfg.normalize()
	return &cfg, nil
}

func loadYAML(dir string, logger *zap.Logger) (*Config, bool) {
	path := filepath.Join(dir, yamlConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Warn("invalid yaml config, ignoring", zap.String("path", path), zap.Error(err))
		return nil, false
	}
	cfg.normalize()
	logger.Info("loaded yaml config", zap.String("path", path))
	return &cfg, true
}

// LoadWithPrecedence は設定ファイルを読み、空の認証情報を環境変数で補う
func LoadWithPrecedence(dir string, logger *zap.Logger) (*Config, error) {
	cfg, err := Load(dir, logger)
	if err != nil {
		return nil, err
	}
	return cfg.withEnv(os.Getenv), nil
}

func (c *Config) withEnv(getenv func(string) string) *Config {
	out := c.Clone()
	if gh := out.Integrations.GitHub; gh != nil && gh.Token == "" {
		gh.Token = getenv(EnvGitHubToken)
		gh.tokenFromEnv = gh.Token != ""
	}
	if ln := out.Integrations.Linear; ln != nil && ln.APIKey == "" {
		ln.APIKey = getenv(EnvLinearKey)
		ln.keyFromEnv = ln.APIKey != ""
	}
	return out
}

// Save は設定ファイルを保存する。環境変数から補った認証情報は書き出さない
func (c *Config) Save(dir string) error {
	out := c.Clone()
	out.Schema = ConfigSchemaURL
	if gh := out.Integrations.GitHub; gh != nil && gh.tokenFromEnv {
		gh.Token = ""
	}
	if ln := out.Integrations.Linear; ln != nil && ln.keyFromEnv {
		ln.APIKey = ""
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := store.WriteFileAtomic(Path(dir), data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
