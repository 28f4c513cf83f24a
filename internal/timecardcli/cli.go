// Package timecardcli is the operator command line: environment setup, the
// API server, roster maintenance and workbook backups.
package timecardcli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/phillip-england/timecard/internal/apiapp"
	"github.com/phillip-england/timecard/internal/config"
	"github.com/phillip-england/timecard/internal/envutil"
	"github.com/phillip-england/timecard/internal/logging"
	"github.com/spf13/cobra"
)

var ErrUsage = errors.New("usage")

const dotEnvFile = ".env"

type options struct {
	configPath string
	out        io.Writer
}

func Execute(args []string) error {
	return execute(args, os.Stdout)
}

func execute(args []string, out io.Writer) error {
	root := newRootCommand(out)
	root.SetArgs(args)
	return root.Execute()
}

// PrintUsage writes the command summary shown after a usage error.
func PrintUsage(w io.Writer) {
	root := newRootCommand(w)
	root.SetOut(w)
	_ = root.Usage()
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &options{out: out}
	root := &cobra.Command{
		Use:           "timecard",
		Short:         "Time card API backed by a spreadsheet workbook",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return usageError()
		},
	}
	root.SetOut(out)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %s", ErrUsage, err)
	})
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a timecard.yaml file")

	root.AddCommand(
		newSetupCommand(opts),
		newServeCommand(opts),
		newEmployeesCommand(opts),
		newBackupCommand(opts),
	)
	return root
}

func usageError() error {
	return fmt.Errorf("%w: timecard <setup|serve|employees|backup> [...]", ErrUsage)
}

func exactArgs(n int, names string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s %s", ErrUsage, cmd.CommandPath(), names)
		}
		return nil
	}
}

func newSetupCommand(opts *options) *cobra.Command {
	var (
		secret   string
		envPath  string
		workbook string
		addr     string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a .env file with the server settings",
		Args:  exactArgs(0, ""),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				generated, err := randomSecret()
				if err != nil {
					return err
				}
				secret = generated
			}
			values := map[string]string{
				config.EnvPrefix + "SESSION_SECRET": secret,
				config.EnvPrefix + "WORKBOOK_PATH":  workbook,
				config.EnvPrefix + "SERVER_ADDR":    addr,
				config.EnvPrefix + "LOG_LEVEL":      "info",
			}
			if err := ensureParentDirs(envPath); err != nil {
				return err
			}
			if err := envutil.WriteDotEnv(envPath, values, force); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "wrote %s\n", envPath)
			return nil
		},
	}
	defaults := config.Default()
	cmd.Flags().StringVar(&secret, "session-secret", "", "session signing secret (generated when empty)")
	cmd.Flags().StringVar(&envPath, "env-file", dotEnvFile, "path to .env file")
	cmd.Flags().StringVar(&workbook, "workbook", defaults.Workbook.Path, "workbook path")
	cmd.Flags().StringVar(&addr, "addr", defaults.Server.Addr, "listen address")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing env file")
	return cmd
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the workbook watcher",
		Args:  exactArgs(0, ""),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if err := ensureParentDirs(cfg.Workbook.Path); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := apiapp.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// load reads .env, then the config, then builds the logger it names.
func (o *options) load() (*config.Config, *slog.Logger, error) {
	if err := envutil.LoadDotEnv(dotEnvFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		dir := filepath.Dir(p)
		if dir == "." || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
