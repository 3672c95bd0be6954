package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bryanchriswhite/backdrop/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Backdrop configuration",
	Long:  `View and manage Backdrop configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current Backdrop configuration.`,
	Example: `  # Show configuration as YAML (default)
  backdrop config show

  # Show configuration as JSON
  backdrop config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value. Nested keys use dots.
The value is parsed as YAML, so numbers and booleans keep their type.`,
	Example: `  # Set server port
  backdrop config set server_port 9090

  # Switch to the remote segmentation service
  backdrop config set segmenter.url http://localhost:5000/segment
  backdrop config set segmenter.backend http

  # Set log level
  backdrop config set log_level debug`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value. Nested keys use dots.`,
	Example: `  # Get server port
  backdrop config get server_port

  # Get the chroma key color
  backdrop config get segmenter.key_color`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

// readViper loads the config file into a fresh viper instance
func readViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

// getConfigValue looks up a dotted key in the persisted config
func getConfigValue(configMgr *config.Manager, key string) (interface{}, error) {
	v, err := readViper(configMgr.GetConfigPath())
	if err != nil {
		return nil, err
	}
	if !v.IsSet(key) {
		return nil, fmt.Errorf("configuration key not found: %s", key)
	}
	return v.Get(key), nil
}

// setConfigValue sets a dotted key, validates the result and saves it
func setConfigValue(configMgr *config.Manager, key, raw string) error {
	v, err := readViper(configMgr.GetConfigPath())
	if err != nil {
		return err
	}

	var value interface{}
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return fmt.Errorf("invalid value %q: %w", raw, err)
	}
	v.Set(key, value)

	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	var cfg config.Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return fmt.Errorf("invalid setting %s: %w", key, err)
	}

	if err := configMgr.Update(&cfg); err != nil {
		return fmt.Errorf("invalid setting %s: %w", key, err)
	}
	return nil
}

func printConfig(w io.Writer, cfg *config.Config, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return printConfig(cmd.OutOrStdout(), configMgr.Get(), formatFlag)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := setConfigValue(configMgr, key, value); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Configuration updated: %s = %s\n", key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	value, err := getConfigValue(configMgr, args[0])
	if err != nil {
		return err
	}

	switch value.(type) {
	case map[string]interface{}, []interface{}:
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(value)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	}
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), configMgr.GetConfigPath())
	return nil
}
