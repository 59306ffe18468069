package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/arloliu/go-rogue/logger"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "rogue",
		Short:        "Memory emulator and tree bridge toolkit.",
		Long:         "Serve an emulated memory with a demo tree over TCP, and read or write it remotely.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogger(cmd)
		},
	}

	cmd.PersistentFlags().String("log-level", envOr("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	cmd.PersistentFlags().String("log-backend", "slog", "log backend: slog, logrus or zap")

	cmd.AddCommand(newServeCmd(), newMemCmd(), newGetCmd(), newSetCmd(), newExecCmd())

	return cmd
}

// setupLogger installs the default logger selected by the global flags.
// The slog backend uses the console handler when stderr is a terminal.
func setupLogger(cmd *cobra.Command) error {
	levelName, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	backend, err := cmd.Flags().GetString("log-backend")
	if err != nil {
		return err
	}

	l, err := newLogger(backend, levelName, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger.SetLogger(l)

	return nil
}

func newLogger(backend, levelName string, w io.Writer) (logger.Logger, error) {
	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	switch backend {
	case "logrus":
		return logger.NewLogrusWithWriter(w, level), nil
	case "zap":
		return logger.NewZapWithWriter(w, level), nil
	case "slog":
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec
			return logger.NewConsole(w, level), nil
		}

		return logger.NewJSON(w, level, false), nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", backend)
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}

	return def
}
