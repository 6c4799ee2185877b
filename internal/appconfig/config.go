package appconfig

import (
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/mkrav/gitdocs/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int            `mapstructure:"config_version" yaml:"config_version"`
	RepoRoot      string         `mapstructure:"repo_root" yaml:"repo_root"`
	StateDir      string         `mapstructure:"state_dir" yaml:"state_dir"`
	Telegram      TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	GitLab        GitLabConfig   `mapstructure:"gitlab" yaml:"gitlab"`
	Documents     DocsConfig     `mapstructure:"documents" yaml:"documents"`
	Logging       LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// TelegramConfig configures the chat transport. Token is never stored in
// the config file; it comes from the environment or a .env file.
type TelegramConfig struct {
	Token        string   `mapstructure:"-" yaml:"-"`
	AdminChatIDs []string `mapstructure:"admin_chat_ids" yaml:"admin_chat_ids"`
	TmpDir       string   `mapstructure:"tmp_dir" yaml:"tmp_dir"`
}

// GitLabConfig configures the REST fallback for lock operations on
// self-hosted GitLab instances whose git-lfs lock support is unreliable.
// APIToken comes from the environment, never the config file.
type GitLabConfig struct {
	APIToken string `mapstructure:"-" yaml:"-"`
}

// DocsConfig controls document discovery and upload limits.
type DocsConfig struct {
	Extensions         []string `mapstructure:"extensions" yaml:"extensions"`
	MaxUploadBytes     int64    `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	AutoUnlockOnUpload bool     `mapstructure:"auto_unlock_on_upload" yaml:"auto_unlock_on_upload"`
	NewDocumentDir     string   `mapstructure:"new_document_dir" yaml:"new_document_dir"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Environment variables carrying secrets. Loaded from the process
// environment or a .env file next to the config.
const (
	EnvTelegramToken = "GITDOCS_TELEGRAM_TOKEN"
	EnvGitLabToken   = "GITDOCS_GITLAB_TOKEN"
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		RepoRoot:      filepath.Join(home, ".gitdocs", "repos"),
		StateDir:      filepath.Join(home, ".gitdocs", "state"),
		Telegram: TelegramConfig{
			AdminChatIDs: []string{},
			TmpDir:       filepath.Join(home, ".gitdocs", "tmp"),
		},
		Documents: DocsConfig{
			Extensions:         append([]string(nil), schema.DefaultDocExtensions...),
			MaxUploadBytes:     schema.DefaultMaxUploadBytes,
			AutoUnlockOnUpload: false,
			NewDocumentDir:     "docs",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gitdocs", "config.yaml"), nil
}

// Validate checks structural constraints that viper cannot express.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.RepoRoot, validation.Required),
		validation.Field(&c.StateDir, validation.Required),
		validation.Field(&c.Documents),
		validation.Field(&c.Logging),
	)
}

// Validate checks document discovery settings.
func (d DocsConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Extensions, validation.Required, validation.Each(validation.By(dotExtension))),
		validation.Field(&d.MaxUploadBytes, validation.Min(int64(1))),
		validation.Field(&d.NewDocumentDir, validation.Required),
	)
}

// Validate checks the log level is one pslog understands.
func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("trace", "debug", "info", "warn", "error")),
	)
}

func dotExtension(value interface{}) error {
	ext, _ := value.(string)
	if len(ext) < 2 || ext[0] != '.' {
		return validation.NewError("validation_extension", "must be a dotted file extension like .docx")
	}
	return nil
}

// ServiceConfig maps the application config onto the core service config.
func (c Config) ServiceConfig() schema.ServiceConfig {
	return schema.ServiceConfig{
		RepoRoot:           c.RepoRoot,
		StateDir:           c.StateDir,
		MaxUploadBytes:     c.Documents.MaxUploadBytes,
		DocExtensions:      append([]string(nil), c.Documents.Extensions...),
		AutoUnlockOnUpload: c.Documents.AutoUnlockOnUpload,
		DocsDir:            c.Documents.NewDocumentDir,
	}
}
