package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/danieldreier/mcp-vocab/internal/config"
	"github.com/danieldreier/mcp-vocab/internal/logging"
	"github.com/danieldreier/mcp-vocab/internal/storage"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds what PersistentPreRunE builds for the subcommands.
type app struct {
	v          *viper.Viper
	configFile string
	envFile    string

	cfg     *config.Config
	logger  *zap.Logger
	store   storage.Storage
	service *VocabService
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:   "vocab",
		Short: "A spaced repetition vocabulary trainer",
		Long: `Vocab schedules vocabulary reviews with SM-2, an adaptive variant of it
or FSRS. Run "vocab serve" to expose it as an MCP server over stdio, or
"vocab review" to review in the terminal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Path to a config file (yaml, json or toml)")
	flags.StringVar(&a.envFile, "env-file", ".env", "Path to a dotenv file")
	flags.String("data-file", "./vocab.json", "Path to the vocabulary data file (json driver)")
	flags.String("driver", config.DriverJSON, "Storage driver: json, sqlite3 or postgres")
	flags.String("dsn", "", "Database DSN for the sqlite3 and postgres drivers")
	flags.String("scheduler", "adaptive", "Scheduler: basic, adaptive or fsrs")
	flags.String("log-level", "info", "Log level")
	flags.Bool("development", false, "Use the development logger")
	flags.Bool("retry-on-mistake", true, "Require retyping the word after a mistake")
	flags.Bool("retry-on-skip", false, "Require retyping the word after a skip")
	if err := config.BindFlags(a.v, flags); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		newServeCmd(a),
		newReviewCmd(a),
		newAddCmd(a),
		newDueCmd(a),
		newRemindCmd(a),
	)
	return rootCmd
}

func (a *app) setup() error {
	if err := config.LoadEnvFile(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize zap logger: %v\n", err)
	}
	a.logger = logger

	store, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	a.store = store

	a.service, err = NewVocabService(store, cfg, logger)
	return err
}

func (a *app) close() error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// openStorage opens the configured storage backend.
func openStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	opts := []storage.Option{storage.WithLogger(logger.Named("storage"))}
	switch cfg.Driver {
	case config.DriverSQLite, config.DriverPostgres:
		store, err := storage.NewSQLStorage(cfg.Driver, cfg.DSN, opts...)
		if err != nil {
			return nil, fmt.Errorf("error opening %s storage: %w", cfg.Driver, err)
		}
		return store, nil
	default:
		store := storage.NewFileStorage(cfg.DataFile, opts...)
		if err := store.Load(); err != nil {
			return nil, fmt.Errorf("error loading storage: %w", err)
		}
		return store, nil
	}
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.logger.Info("Starting MCP server",
				zap.String("driver", a.cfg.Driver),
				zap.String("scheduler", a.service.Scheduler.Name()))
			if err := server.ServeStdio(newServer(a.service)); err != nil {
				return fmt.Errorf("error serving MCP server: %w", err)
			}
			return nil
		},
	}
}

func newReviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Review the words due now in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runReview(ctx, a.service, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var nw storage.NewWord
	cmd := &cobra.Command{
		Use:   "add <word> <meaning>",
		Short: "Add a word",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nw.Word, nw.Meaning = args[0], args[1]
			word, err := a.service.AddWord(nw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %q (%s)\n", word.Word, word.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&nw.Example, "example", "", "Example sentence")
	cmd.Flags().StringVar(&nw.Phonetic, "phonetic", "", "Phonetic transcription")
	cmd.Flags().StringVar(&nw.Pronunciation, "pronunciation", "", "Pronunciation")
	cmd.Flags().StringVar(&nw.Category, "category", "", "Category")
	cmd.Flags().StringSliceVar(&nw.Tags, "tags", nil, "Comma separated tags")
	return cmd
}

func newDueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "List the words due now",
		RunE: func(cmd *cobra.Command, args []string) error {
			words, err := a.service.DueWords()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(words) == 0 {
				fmt.Fprintln(out, "No words due for review.")
				return nil
			}
			fmt.Fprintf(out, "%d words due:\n\n", len(words))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWord\tReps\tInterval\tNext Review\tTags")
			for _, word := range words {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					word.ID, word.Word, word.SRS.Repetitions, word.SRS.Interval,
					word.SRS.NextReview.Format("2006-01-02 15:04"), strings.Join(word.Tags, ", "))
			}
			return w.Flush()
		},
	}
}

func newRemindCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Log a reminder whenever words are due, until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := NewReminder(a.service, a.cfg.ReminderInterval, a.logger)
			if err := r.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			r.Stop()
			return nil
		},
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
