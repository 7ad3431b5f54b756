package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tiliavir/boring-time-tracker/internal/config"
	"github.com/Tiliavir/boring-time-tracker/internal/metrics"
	"github.com/Tiliavir/boring-time-tracker/internal/tracking"
)

var (
	configPath  string
	verbose     bool
	tzFlag      string
	dumpMetrics bool
)

// now is the CLI's clock; tests replace it.
var now = time.Now

var rootCmd = &cobra.Command{
	Use:   "btt",
	Short: "Boring Time Tracker – a minimal CLI time tracker",
	Long: `btt is a single-binary command-line time tracker.
Records are kept as JSON files, in SQLite or in PostgreSQL; preferences and
tokens live in an encrypted local store. Configuration: ~/.btt/config.json.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dumpMetrics {
			printMetrics(cmd.ErrOrStderr())
		}
	},
}

// Execute is the entry point called from main. User errors exit with 1,
// storage and other runtime failures with 2.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: $HOME/.btt/config.json)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&tzFlag, "tz", "", "IANA timezone for calendar dates (overrides tracker.timezone)")
	rootCmd.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "Print internal counters to stderr on exit")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(outlookCmd)
	rootCmd.AddCommand(debugCmd)
}

var cfg config.Config

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return runtimeError(fmt.Errorf("failed to load config: %w", err))
	}
	if tzFlag != "" {
		cfg.Tracker.Timezone = tzFlag
	}

	level, _ := logrus.ParseLevel(cfg.Log.Level)
	if verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(cmd.ErrOrStderr())
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})

	logrus.WithFields(logrus.Fields{
		"config":   cfg.Path,
		"driver":   cfg.Storage.Driver,
		"timezone": cfg.Tracker.Timezone,
	}).Debug("configuration loaded")
	return nil
}

// usageError marks invalid arguments or flags.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// runtimeErr marks failures of the environment: storage, network, files.
type runtimeErr struct{ err error }

func (e *runtimeErr) Error() string { return e.err.Error() }
func (e *runtimeErr) Unwrap() error { return e.err }

func runtimeError(err error) error {
	if err == nil {
		return nil
	}
	return &runtimeErr{err: err}
}

// classify wraps errors returned by the tracker: request errors stay as
// they are, everything else is a runtime failure.
func classify(err error) error {
	if err == nil || tracking.UserError(err) {
		return err
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return err
	}
	return runtimeError(err)
}

func exitCode(err error) int {
	var re *runtimeErr
	var ue *usageError
	switch {
	case errors.As(err, &ue), tracking.UserError(err):
		return 1
	case errors.As(err, &re):
		return 2
	default:
		// cobra argument and flag errors
		return 1
	}
}

func printMetrics(w io.Writer) {
	samples, err := metrics.Snapshot()
	if err != nil {
		logrus.WithError(err).Warn("could not gather metrics")
		return
	}
	for _, s := range samples {
		fmt.Fprintf(w, "%s %g\n", s.Name, s.Value)
	}
}
