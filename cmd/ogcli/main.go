// Command ogcli is a terminal client for the OpenGround API: log in, search
// listings, manage favourites and follow chat threads live.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/client"
	"github.com/openground/backend/internal/infrastructure/logger"
)

const defaultServer = "http://localhost:8080"

var (
	cfg = viper.New()
	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "ogcli",
	Short:         "Command-line client for the OpenGround marketplace API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if cfg.GetBool("verbose") {
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
	flags := rootCmd.PersistentFlags()
	flags.String("server", defaultServer, "API base URL (env OG_SERVER)")
	flags.String("token", "", "Access token; defaults to the one saved by login (env OG_TOKEN)")
	flags.BoolP("verbose", "v", false, "Debug logging")
	for _, name := range []string{"server", "token", "verbose"} {
		_ = cfg.BindPFlag(name, flags.Lookup(name))
	}
	cfg.SetEnvPrefix("OG")
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()

	rootCmd.AddCommand(loginCmd, logoutCmd, searchCmd, favoritesCmd, chatCmd)
}

func main() {
	err := rootCmd.Execute()
	_ = log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, client.ErrUnauthorized) {
			fmt.Fprintln(os.Stderr, "Run `ogcli login` first.")
		}
		os.Exit(1)
	}
}

// newClient builds an API client from flags, env and the saved token
func newClient() *client.Client {
	token := cfg.GetString("token")
	if token == "" {
		token, _ = loadToken()
	}
	return client.New(cfg.GetString("server"),
		client.WithToken(token),
		client.WithLogger(log),
	)
}

func tokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "openground", "token"), nil
}

func loadToken() (string, error) {
	path, err := tokenPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func saveToken(token string) error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}
