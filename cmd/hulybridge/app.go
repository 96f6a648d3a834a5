package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pkt.systems/hulybridge"
	"pkt.systems/hulybridge/internal/svcfields"
	"pkt.systems/pslog"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("HULY_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "hulybridge")
	cmd := newRootCommand(baseLogger)
	rootInvocation := invocationTargetsRootCommand(cmd, os.Args[1:])
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			if rootInvocation {
				svcfields.WithSubsystem(baseLogger, svcfields.CLIRoot).Error("command failed", "error", err)
			} else {
				fmt.Fprintf(os.Stderr, "%s\n", err)
			}
		}
		return 1
	}
	return 0
}

// invocationTargetsRootCommand reports whether args run the root (serve)
// command rather than a subcommand. Root failures are logged; subcommand
// failures are printed plainly.
func invocationTargetsRootCommand(root *cobra.Command, args []string) bool {
	lookup := func(long, short string) *pflag.Flag {
		for _, set := range []*pflag.FlagSet{root.Flags(), root.PersistentFlags()} {
			if long != "" {
				if f := set.Lookup(long); f != nil {
					return f
				}
			} else if f := set.ShorthandLookup(short); f != nil {
				return f
			}
		}
		return nil
	}
	hasSubcommand := func(rest []string) bool {
		for _, tok := range rest {
			if isSubcommandToken(root, tok) {
				return true
			}
		}
		return false
	}
	for i := 0; i < len(args); {
		arg := args[i]
		switch {
		case arg == "--":
			return true
		case strings.HasPrefix(arg, "--"):
			i++
			if strings.Contains(arg, "=") {
				continue
			}
			flag := lookup(strings.TrimPrefix(arg, "--"), "")
			if flag == nil {
				return !hasSubcommand(args[i:])
			}
			if flag.NoOptDefVal == "" && i < len(args) {
				i++
			}
		case strings.HasPrefix(arg, "-") && arg != "-":
			i++
			consumeNext := false
			shorts := strings.TrimPrefix(arg, "-")
			for idx, ch := range shorts {
				flag := lookup("", string(ch))
				if flag == nil {
					return !hasSubcommand(args[i:])
				}
				if flag.NoOptDefVal == "" {
					consumeNext = idx == len(shorts)-1
					break
				}
			}
			if consumeNext && i < len(args) {
				i++
			}
		default:
			return !isSubcommandToken(root, arg)
		}
	}
	return true
}

func isSubcommandToken(root *cobra.Command, token string) bool {
	for _, sub := range root.Commands() {
		if token == sub.Name() || sub.HasAlias(token) {
			return true
		}
	}
	return false
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.IBytes(uint64(n)), " ", "")
}

func loadConfigFile(v *viper.Viper) (string, error) {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	explicit := cfgPath != ""
	if cfgPath == "" {
		if candidate, err := hulybridge.DefaultConfigPath(); err == nil {
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}
	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

// cliEnv holds the viper instance shared by the root command and its subcommands.
type cliEnv struct {
	v          *viper.Viper
	baseLogger pslog.Logger
}

// load reads the config file, binds flags, env and file into a validated
// Config and returns a logger at the configured level.
func (e *cliEnv) load() (hulybridge.Config, pslog.Logger, error) {
	logger := e.baseLogger
	configFile, err := loadConfigFile(e.v)
	if err != nil {
		return hulybridge.Config{}, logger, err
	}
	if level, ok := pslog.ParseLevel(strings.TrimSpace(e.v.GetString("log-level"))); ok {
		logger = logger.LogLevel(level)
	}
	if configFile != "" {
		svcfields.WithSubsystem(logger, svcfields.CLIRoot).Info("loaded config file", "path", configFile)
	}
	var cfg hulybridge.Config
	if err := bindConfig(e.v, &cfg); err != nil {
		return cfg, logger, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, logger, err
	}
	return cfg, logger, nil
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	env := &cliEnv{v: viper.New(), baseLogger: baseLogger}

	cmd := &cobra.Command{
		Use:           "hulybridge",
		Short:         "hulybridge serves a collaboration platform workspace as MCP tools",
		SilenceErrors: true,
		Example: `
  # stdio transport for agent hosts that spawn the process
  HULY_PASSWORD=... hulybridge --base-url https://huly.example.com --email bot@example.com --workspace engineering

  # streamable HTTP, read-only, with Prometheus metrics
  hulybridge -t http --listen 127.0.0.1:19342 --read-only --metrics-listen 127.0.0.1:9464

  # check credentials without serving
  hulybridge whoami
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, logger, err := env.load()
			if err != nil {
				return err
			}
			svcfields.WithSubsystem(logger, "server.lifecycle.init").Info(
				"welcome to hulybridge",
				"pid", os.Getpid(),
				"uid", os.Getuid(),
				"gid", os.Getgid(),
			)
			return hulybridge.Run(cmd.Context(), cfg, logger)
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/.hulybridge/"+hulybridge.DefaultConfigFileName+")")
	persistentFlags.StringP("base-url", "u", "", "platform base URL serving /config.json")
	persistentFlags.StringP("email", "e", "", "account email")
	persistentFlags.String("password", "", "account password (prefer HULY_PASSWORD)")
	persistentFlags.StringP("workspace", "w", "", "workspace URL name")
	persistentFlags.Duration("http-timeout", hulybridge.DefaultHTTPTimeout, "timeout for each REST request")
	persistentFlags.Duration("hello-timeout", hulybridge.DefaultHelloTimeout, "timeout for the transaction socket handshake")
	persistentFlags.Duration("tx-timeout", hulybridge.DefaultTxTimeout, "timeout for each socket transaction")
	persistentFlags.String("blob-threshold", humanizeBytes(int64(hulybridge.DefaultBlobThreshold)), "content size from which content is stored as a blob")
	persistentFlags.Bool("disable-socket-writes", false, "send document writes over REST instead of the transaction socket")
	persistentFlags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	flags := cmd.Flags()
	flags.StringP("transport", "t", hulybridge.DefaultMCPTransport, "MCP transport (stdio, http)")
	flags.String("listen", hulybridge.DefaultMCPListen, "listen address for the http transport")
	flags.String("mcp-path", hulybridge.DefaultMCPPath, "HTTP path for the http transport")
	flags.Bool("read-only", false, "hide every tool that writes to the platform")
	flags.String("max-content", humanizeBytes(hulybridge.DefaultMaxContentBytes), "maximum content, description, comment or attachment size per tool call")
	flags.String("otlp-endpoint", "", "OTLP trace endpoint (host:port, grpc://, grpcs://, http://, https://)")
	flags.String("metrics-listen", hulybridge.DefaultMetricsListen, "metrics listen address (Prometheus scrape endpoint; empty disables)")
	flags.String("pprof-listen", hulybridge.DefaultPprofListen, "pprof listen address (debug/pprof endpoints; empty disables)")
	flags.Bool("enable-profiling-metrics", false, "enable Go runtime metrics on the Prometheus endpoint")
	flags.Duration("shutdown-timeout", hulybridge.DefaultShutdownTimeout, "maximum time spent shutting down")

	env.v.SetEnvPrefix("HULY")
	env.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	env.v.AutomaticEnv()
	for _, set := range []*pflag.FlagSet{persistentFlags, flags} {
		set.VisitAll(func(f *pflag.Flag) {
			if err := env.v.BindPFlag(f.Name, f); err != nil {
				panic(err)
			}
		})
	}

	cmd.AddCommand(newWhoamiCommand(env))
	cmd.AddCommand(newToolsCommand())
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func bindConfig(v *viper.Viper, cfg *hulybridge.Config) error {
	cfg.BaseURL = v.GetString("base-url")
	cfg.Email = v.GetString("email")
	cfg.Password = v.GetString("password")
	cfg.Workspace = v.GetString("workspace")
	cfg.MCPTransport = v.GetString("transport")
	cfg.MCPListen = v.GetString("listen")
	cfg.MCPPath = v.GetString("mcp-path")
	cfg.ReadOnly = v.GetBool("read-only")
	if raw := strings.TrimSpace(v.GetString("max-content")); raw != "" {
		size, err := humanize.ParseBytes(raw)
		if err != nil {
			return fmt.Errorf("parse max-content: %w", err)
		}
		cfg.MaxContentBytes = int64(size)
	}
	if raw := strings.TrimSpace(v.GetString("blob-threshold")); raw != "" {
		size, err := humanize.ParseBytes(raw)
		if err != nil {
			return fmt.Errorf("parse blob-threshold: %w", err)
		}
		cfg.BlobThreshold = int(size)
	}
	cfg.DisableSocketWrites = v.GetBool("disable-socket-writes")
	cfg.HTTPTimeout = v.GetDuration("http-timeout")
	cfg.HelloTimeout = v.GetDuration("hello-timeout")
	cfg.TxTimeout = v.GetDuration("tx-timeout")
	cfg.OTLPEndpoint = v.GetString("otlp-endpoint")
	cfg.MetricsListen = v.GetString("metrics-listen")
	cfg.PprofListen = v.GetString("pprof-listen")
	cfg.EnableProfilingMetrics = v.GetBool("enable-profiling-metrics")
	cfg.ShutdownTimeout = v.GetDuration("shutdown-timeout")
	return nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
