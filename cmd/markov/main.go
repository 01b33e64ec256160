package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CTAG07/markovchain/pkg/markov"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// app holds everything a command needs once configuration has been loaded.
type app struct {
	config *Config
	logger *slog.Logger
	model  *markov.Model
	db     *sql.DB
	store  *markov.SQLStore
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database", "error", err)
		}
	}
}

type rootFlags struct {
	configPath string
	order      int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "markov",
		Short:         "Train order-N Markov chains and generate text from them",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "./config.json", "path to the JSON config file")
	rootCmd.PersistentFlags().IntVar(&flags.order, "order", 0, "chain order, overrides the config file")

	rootCmd.AddCommand(
		newLearnCmd(flags),
		newGenerateCmd(flags),
		newStatsCmd(flags),
		newPruneCmd(flags),
		newExportCmd(flags),
		newImportCmd(flags),
	)
	return rootCmd
}

// openApp loads the config, sets up logging and the chosen store, and opens
// the model.
func openApp(ctx context.Context, flags *rootFlags) (*app, error) {
	config, err := LoadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.order != 0 {
		config.Markov.Order = flags.order
		if err = config.Validate(); err != nil {
			return nil, err
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.Level()}))
	a := &app{config: config, logger: logger}

	opts := []markov.ModelOption{markov.WithLogger(logger)}
	if config.Generate.Lowercase {
		opts = append(opts, markov.WithTokenizer(markov.NewDefaultTokenizer(markov.WithLowercase(language.Und))))
	}

	if config.Backend == backendSQLite {
		dbFile, _, _ := strings.Cut(config.DatabasePath, "?")
		if err = os.MkdirAll(filepath.Dir(dbFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		if a.db, err = initDB(config.DatabasePath); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err = markov.SetupSchema(a.db); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to setup markov schema: %w", err)
		}
		if a.store, err = markov.NewSQLStore(a.db); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to prepare markov store: %w", err)
		}
		a.store.SetLogger(logger)
		opts = append(opts, markov.WithStore(a.store))
	}

	if a.model, err = markov.Open(ctx, config.Markov, opts...); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newLearnCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "learn [file...]",
		Short: "Learn from files, or from stdin when none are given, and save the chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				if err = a.model.Train(ctx, cmd.InOrStdin()); err != nil {
					return err
				}
			}
			for _, path := range args {
				if err = learnFile(ctx, a.model, path); err != nil {
					return err
				}
			}
			return a.model.Save(ctx)
		},
	}
}

func learnFile(ctx context.Context, m *markov.Model, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)
	if err = m.Train(ctx, file); err != nil {
		return fmt.Errorf("failed to learn %s: %w", path, err)
	}
	return nil
}

func newGenerateCmd(flags *rootFlags) *cobra.Command {
	var (
		seed        uint64
		maxLength   int
		temperature float64
		topK        int
		noStop      bool
	)

	cmd := &cobra.Command{
		Use:   "generate [seed words...]",
		Short: "Generate text, continuing the given seed words",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			gen := a.config.Generate
			if cmd.Flags().Changed("max-length") {
				gen.MaxLength = maxLength
			}
			if cmd.Flags().Changed("temperature") {
				gen.Temperature = temperature
			}
			if cmd.Flags().Changed("top-k") {
				gen.TopK = topK
			}
			if noStop {
				gen.StopAtTerminal = false
			}
			if !cmd.Flags().Changed("seed") {
				seed = uint64(time.Now().UnixNano())
			}

			opts := []markov.GenerateOption{
				markov.WithTemperature(gen.Temperature),
				markov.WithTopK(gen.TopK),
			}
			if gen.StopAtTerminal {
				opts = append(opts, markov.WithEarlyTermination(a.model.Tokenizer().IsTerminal))
			}

			output, err := a.model.Generate(ctx, strings.Join(args, " "), gen.MaxLength, markov.NewRand(seed), opts...)
			if err != nil {
				if errors.Is(err, markov.ErrInsufficientSeed) && a.model.Chain().Len() == 0 {
					return fmt.Errorf("%w: the chain is empty, run \"markov learn\" first", err)
				}
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), output)
			return err
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed; the same seed reproduces the same output")
	cmd.Flags().IntVar(&maxLength, "max-length", 0, "maximum number of tokens, seed included")
	cmd.Flags().Float64Var(&temperature, "temperature", 1.0, "sampling temperature, 0 always picks the most frequent token")
	cmd.Flags().IntVar(&topK, "top-k", 0, "sample only among the k most frequent tokens, 0 disables")
	cmd.Flags().BoolVar(&noStop, "no-stop", false, "keep generating past sentence-ending punctuation")
	return cmd
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print statistics about the stored chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			stats := a.model.Stats()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "order:           %d\ncontexts:        %d\nchains:          %d\ntotal frequency: %d\nvocabulary:      %d\n",
				stats.Order, stats.Contexts, stats.TotalChains, stats.TotalFrequency, stats.VocabSize)
			return err
		},
	}
}

func newPruneCmd(flags *rootFlags) *cobra.Command {
	var minFreq int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove links seen at most --min-freq times and save the chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			a.model.Prune(ctx, minFreq)
			return a.model.Save(ctx)
		},
	}
	cmd.Flags().IntVar(&minFreq, "min-freq", 1, "remove links with a count less than or equal to this")
	return cmd
}

func newExportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export the chain as JSON to a file, or to stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				return a.model.Export(cmd.OutOrStdout())
			}
			var buf bytes.Buffer
			if err = a.model.Export(&buf); err != nil {
				return err
			}
			return atomic.WriteFile(args[0], &buf)
		},
	}
}

func newImportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import file",
		Short: "Merge a JSON export into the chain and save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			var r io.ReadCloser
			if r, err = os.Open(args[0]); err != nil {
				return err
			}
			defer func(r io.ReadCloser) {
				_ = r.Close()
			}(r)

			if err = a.model.Import(ctx, r); err != nil {
				return err
			}
			return a.model.Save(ctx)
		},
	}
}
