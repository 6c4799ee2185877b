package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses
// DefaultConfigPath. Secrets come from the process environment, optionally
// topped up from a .env file in the config directory.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("repo_root", cfg.RepoRoot)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("telegram.admin_chat_ids", cfg.Telegram.AdminChatIDs)
	v.SetDefault("telegram.tmp_dir", cfg.Telegram.TmpDir)
	v.SetDefault("documents.extensions", cfg.Documents.Extensions)
	v.SetDefault("documents.max_upload_bytes", cfg.Documents.MaxUploadBytes)
	v.SetDefault("documents.auto_unlock_on_upload", cfg.Documents.AutoUnlockOnUpload)
	v.SetDefault("documents.new_document_dir", cfg.Documents.NewDocumentDir)
	v.SetDefault("logging.level", cfg.Logging.Level)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		// A missing config file falls back to defaults.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
		if v.IsSet("telegram.token") {
			return Config{}, fmt.Errorf("telegram.token must not be stored in the config file; set %s instead", EnvTelegramToken)
		}
		if v.IsSet("gitlab.api_token") {
			return Config{}, fmt.Errorf("gitlab.api_token must not be stored in the config file; set %s instead", EnvGitLabToken)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.RepoRoot = expandEnv(cfg.RepoRoot)
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Telegram.TmpDir = expandEnv(cfg.Telegram.TmpDir)

	loadSecrets(&cfg, filepath.Join(filepath.Dir(path), ".env"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadSecrets fills secret fields from the environment. An optional .env
// file supplements the environment without overriding it.
func loadSecrets(cfg *Config, envPath string) {
	if _, err := os.Stat(envPath); err == nil {
		_ = godotenv.Load(envPath)
	}
	cfg.Telegram.Token = os.Getenv(EnvTelegramToken)
	cfg.GitLab.APIToken = os.Getenv(EnvGitLabToken)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
