package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/hulybridge"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage hulybridge configuration files",
	}
	cmd.AddCommand(newConfigGenCommand())
	return cmd
}

func newConfigGenCommand() *cobra.Command {
	var outPath string
	var force bool
	var stdout bool
	defaultOutput := "$HOME/.hulybridge/" + hulybridge.DefaultConfigFileName
	if path, err := hulybridge.DefaultConfigPath(); err == nil {
		defaultOutput = path
	}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a default hulybridge configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout && outPath != "" {
				return fmt.Errorf("--stdout and --out are mutually exclusive")
			}
			data, err := defaultConfigYAML()
			if err != nil {
				return err
			}
			if stdout {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if outPath == "" {
				path, err := hulybridge.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				outPath = path
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o700); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", outPath)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", fmt.Sprintf("output path for generated config (defaults to %s)", defaultOutput))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config to stdout instead of writing a file")
	return cmd
}

// configDefaults mirrors the root command flags; keys match flag names so
// viper reads the file without translation.
type configDefaults struct {
	BaseURL                string `yaml:"base-url"`
	Email                  string `yaml:"email"`
	Password               string `yaml:"password"`
	Workspace              string `yaml:"workspace"`
	Transport              string `yaml:"transport"`
	Listen                 string `yaml:"listen"`
	MCPPath                string `yaml:"mcp-path"`
	ReadOnly               bool   `yaml:"read-only"`
	MaxContent             string `yaml:"max-content"`
	BlobThreshold          string `yaml:"blob-threshold"`
	DisableSocketWrites    bool   `yaml:"disable-socket-writes"`
	HTTPTimeout            string `yaml:"http-timeout"`
	HelloTimeout           string `yaml:"hello-timeout"`
	TxTimeout              string `yaml:"tx-timeout"`
	OTLPEndpoint           string `yaml:"otlp-endpoint"`
	MetricsListen          string `yaml:"metrics-listen"`
	PprofListen            string `yaml:"pprof-listen"`
	EnableProfilingMetrics bool   `yaml:"enable-profiling-metrics"`
	ShutdownTimeout        string `yaml:"shutdown-timeout"`
	LogLevel               string `yaml:"log-level"`
}

func defaultConfigYAML() ([]byte, error) {
	defaults := configDefaults{
		BaseURL:         "https://huly.example.com",
		Email:           "bot@example.com",
		Workspace:       "engineering",
		Transport:       hulybridge.DefaultMCPTransport,
		Listen:          hulybridge.DefaultMCPListen,
		MCPPath:         hulybridge.DefaultMCPPath,
		MaxContent:      humanizeBytes(hulybridge.DefaultMaxContentBytes),
		BlobThreshold:   humanizeBytes(int64(hulybridge.DefaultBlobThreshold)),
		HTTPTimeout:     hulybridge.DefaultHTTPTimeout.String(),
		HelloTimeout:    hulybridge.DefaultHelloTimeout.String(),
		TxTimeout:       hulybridge.DefaultTxTimeout.String(),
		MetricsListen:   hulybridge.DefaultMetricsListen,
		PprofListen:     hulybridge.DefaultPprofListen,
		ShutdownTimeout: hulybridge.DefaultShutdownTimeout.String(),
		LogLevel:        "info",
	}
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}
	header := []byte("# hulybridge configuration. Set the password here or via HULY_PASSWORD.\n")
	return append(header, data...), nil
}
