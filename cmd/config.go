package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"smartsteps/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage smartsteps configuration file values.",
	Long: `Create, display, and validate the smartsteps configuration file.

The configuration stores application-wide values:
- database.path
- smtp.host / smtp.port / smtp.username / smtp.password / smtp.from
- import.strict_mapping / import.auto_link_employees`,
	Example: `
  # Create default config in $HOME/.smartsteps.yaml
  smartsteps config create

  # Show active config and source file
  smartsteps config show

  # Validate a config file without loading it
  smartsteps config validate ./custom.yaml
`,
}

var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a configuration file from the example template.",
	Long: `Create a new configuration file from the built-in example template.

If a configuration file is already in use, no new file is written.`,
	Example: `
  # Create default config at $HOME/.smartsteps.yaml
  smartsteps config create
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := resolveConfigPath(cfgFile, viper.ConfigFileUsed())
		if err != nil {
			return err
		}

		created, err := ensureConfigFileWithTemplate(configPath)
		if err != nil {
			return err
		}

		if created {
			fmt.Printf("New config file created at: %s\n", configPath)
			return nil
		}
		fmt.Printf("Config file already exists at: %s\n", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show active configuration values.",
	Long: `Display the currently loaded configuration and the resolved config file path.

This command validates the configuration before printing values.`,
	Example: `
  # Show active configuration
  smartsteps config show
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadAndValidate()
		if err != nil {
			fmt.Println("Invalid config:", err)
			return
		}

		if configPath := viper.ConfigFileUsed(); configPath != "" {
			fmt.Println("Config file loaded from:", configPath)
		}
		fmt.Println("Configuration:")
		fmt.Printf("database.path: %s\n", cfg.Database.Path)
		fmt.Printf("smtp.host: %s\n", cfg.SMTP.Host)
		fmt.Printf("smtp.port: %d\n", cfg.SMTP.Port)
		fmt.Printf("smtp.username: %s\n", cfg.SMTP.Username)
		fmt.Printf("smtp.from: %s\n", cfg.SMTP.From)
		fmt.Printf("import.strict_mapping: %t\n", cfg.Import.StrictMapping)
		fmt.Printf("import.auto_link_employees: %t\n", cfg.Import.AutoLinkEmployees)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a configuration file.",
	Long: `Validate the YAML content of a configuration file without making it active.

When no file argument is given, the active config file is validated.`,
	Example: `
  # Validate the active config
  smartsteps config validate

  # Validate a specific file
  smartsteps config validate ./custom.yaml
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var configPath string
		if len(args) == 1 {
			configPath = args[0]
		} else {
			resolved, err := resolveConfigPath(cfgFile, viper.ConfigFileUsed())
			if err != nil {
				return err
			}
			configPath = resolved
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("reading config failed: %w", err)
		}
		if _, err := config.ValidateYAMLContent(content); err != nil {
			return fmt.Errorf("config validation failed in %s: %w", configPath, err)
		}

		fmt.Printf("Configuration is valid: %s\n", configPath)
		return nil
	},
}

func resolveConfigPath(configFileFlag, configFileUsed string) (string, error) {
	if strings.TrimSpace(configFileFlag) != "" {
		return configFileFlag, nil
	}
	if strings.TrimSpace(configFileUsed) != "" {
		return configFileUsed, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".smartsteps.yaml"), nil
}

func ensureConfigFileWithTemplate(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, fmt.Errorf("checking config file failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("creating config directory failed: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.ExampleYAML()), 0o600); err != nil {
		return false, fmt.Errorf("creating example config failed: %w", err)
	}

	return true, nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCreateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}
