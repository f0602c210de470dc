package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chative/sqlagent/internal/agent/model"
	"github.com/chative/sqlagent/internal/server"
	logx "github.com/chative/sqlagent/pkg/logger"
)

type rootOptions struct {
	envFile string
	catalog string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "sqlagent",
		Short:         "Answer questions about a relational database in natural language.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.catalog, "catalog", "", "catalog YAML of terms and tables (overrides CATALOG_PATH)")

	cmd.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newIndexCmd(opts),
	)
	return cmd
}

// setup loads and validates the configuration and initialises logging.
func setup(opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts.envFile)
	if err != nil {
		return nil, err
	}
	if opts.catalog != "" {
		cfg.CatalogPath = opts.catalog
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Level: cfg.LogLevel})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return newApp(cfg), nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat endpoint over HTTP.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := setup(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			runner, err := a.runner(ctx)
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			return server.New(runner, server.Options{
				Addr:           a.cfg.ServerAddr,
				AllowedOrigins: a.cfg.CORSOrigins,
				TurnTimeout:    a.cfg.TurnTimeout,
			}).Run(ctx)
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question, or read questions from stdin in one session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := setup(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			runner, err := a.runner(ctx)
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}

			if len(args) > 0 {
				_, err := ask(ctx, cmd.OutOrStdout(), runner, sessionID, strings.Join(args, " "))
				return err
			}

			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprint(out, "> ")
			for scanner.Scan() {
				text := strings.TrimSpace(scanner.Text())
				if text != "" {
					if sessionID, err = ask(ctx, out, runner, sessionID, text); err != nil {
						return err
					}
				}
				fmt.Fprint(out, "> ")
			}
			fmt.Fprintln(out)
			return scanner.Err()
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to continue")
	return cmd
}

// ask runs one turn and prints the reply. It returns the session id to use
// for the next turn.
func ask(ctx context.Context, out io.Writer, runner server.Runner, sessionID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return sessionID, errors.New("no question given")
	}
	reply, err := runner.Invoke(ctx, model.QueryInput{SessionID: sessionID, Text: text})
	if err != nil {
		return sessionID, err
	}
	fmt.Fprintln(out, reply.Text)
	fmt.Fprintf(out, "\nsession: %s  outcome: %s\n", reply.SessionID, reply.Outcome)
	if reply.ExecutedSQL != "" {
		fmt.Fprintf(out, "sql: %s\n", reply.ExecutedSQL)
	}
	return reply.SessionID, nil
}

func newIndexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Embed the catalog and write it to the similarity index.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := setup(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.CatalogPath == "" {
				return errors.New("index: --catalog or CATALOG_PATH is required")
			}
			if a.cfg.Vector.Backend != backendRedis {
				return fmt.Errorf("index: VECTOR_BACKEND=%s is process-local; the in-memory index is built at startup from CATALOG_PATH", a.cfg.Vector.Backend)
			}
			stats, err := a.indexCatalog(ctx, a.cfg.CatalogPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d term documents and %d tables\n", stats.Terms, stats.Tables)
			return nil
		},
	}
}
