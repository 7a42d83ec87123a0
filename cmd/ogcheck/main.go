// Command ogcheck runs the front-end consistency checks: button variants,
// hardcoded strings and locale parity, and markup accessibility. It prints
// one line per problem and exits 1 when any is found.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/infrastructure/logger"
)

// errViolations makes the process exit 1 without printing an error
var errViolations = errors.New("violations found")

var (
	verbose bool
	log     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "ogcheck",
	Short: "Front-end consistency and accessibility checks",
	Long: `ogcheck scans a front-end source tree (default: the current directory).

Settings are read from .ogcheck.yaml in the scanned directory when present:
extra file extensions, excluded directories, an i18n allowlist, the locales
directory and additional legacy button variant mappings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		l, err := logger.New(logger.Config{Level: level, Format: "console", Output: "stderr"})
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		log = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log scanned files and timings")

	buttonsCmd.Flags().BoolVar(&writeFixes, "write", false, "Rewrite legacy variants in place")
	allCmd.Flags().BoolVar(&writeFixes, "write", false, "Rewrite legacy variants in place before checking")

	rootCmd.AddCommand(buttonsCmd, i18nCmd, a11yCmd, allCmd)
}

func main() {
	err := rootCmd.Execute()
	_ = log.Sync()
	if err != nil {
		if !errors.Is(err, errViolations) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
