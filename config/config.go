package config

import (
	"bytes"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	KeyDatabasePath        = "database.path"
	KeySMTPHost            = "smtp.host"
	KeySMTPPort            = "smtp.port"
	KeySMTPFrom            = "smtp.from"
	KeyImportStrictMapping = "import.strict_mapping"
	KeyImportAutoLink      = "import.auto_link_employees"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	SMTP     SMTPConfig     `mapstructure:"smtp" validate:"required"`
	Import   ImportConfig   `mapstructure:"import"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from" validate:"required,email"`
}

type ImportConfig struct {
	// StrictMapping rejects rows whose in/out source values are textually
	// identical instead of dropping the out value with a warning.
	StrictMapping bool `mapstructure:"strict_mapping"`
	// AutoLinkEmployees resolves raw employee identifiers against the
	// directory right after each import.
	AutoLinkEmployees bool `mapstructure:"auto_link_employees"`
}

// SetDefaults sets default values if not provided
func SetDefaults() {
	setDefaults(viper.GetViper())
}

// LoadAndValidate loads config from Viper and validates it
func LoadAndValidate() (*Config, error) {
	return loadAndValidateFromViper(viper.GetViper())
}

// ValidateYAMLContent validates configuration from raw YAML content.
func ValidateYAMLContent(content []byte) (*Config, error) {
	local := viper.New()
	setDefaults(local)
	local.SetConfigType("yaml")
	if err := local.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("read config content: %w", err)
	}
	return loadAndValidateFromViper(local)
}

// ExampleYAML returns the default configuration template.
func ExampleYAML() string {
	return `# smartsteps configuration
database:
  path: "./smartsteps.db"

smtp:
  host: "smtp.example.com"
  port: 587
  username: ""
  password: ""
  from: "billing@example.com"

import:
  strict_mapping: false
  auto_link_employees: true
`
}

func loadAndValidateFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabasePath, "./smartsteps.db")
	v.SetDefault(KeySMTPPort, 587)
	v.SetDefault(KeyImportStrictMapping, false)
	v.SetDefault(KeyImportAutoLink, true)
}
