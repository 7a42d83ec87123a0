package main

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/openground/backend/internal/client"
)

var loginCmd = &cobra.Command{
	Use:   "login <email-or-username>",
	Short: "Log in and save the access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		c := newClient()
		sess, err := c.Login(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}
		if err := saveToken(sess.AccessToken); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", sess.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := tokenPath()
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise, so the password can be piped in scripts
func readPassword(cmd *cobra.Command) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var searchParams client.SearchParams

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search active listings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := searchParams
		if len(args) > 0 {
			p.Query = args[0]
		}
		listings, err := newClient().SearchListings(cmd.Context(), p)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tPRICE\tCITY\tSAVED")
		for _, l := range listings {
			saved := ""
			if l.IsFavorite {
				saved = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\n", l.ID, l.Title, l.Price.StringFixed(2), l.Currency, l.City, saved)
		}
		return w.Flush()
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchParams.Category, "category", "", "Category slug")
	searchCmd.Flags().StringVar(&searchParams.City, "city", "", "City")
	searchCmd.Flags().IntVar(&searchParams.Page, "page", 1, "Page number")
	searchCmd.Flags().IntVar(&searchParams.PageSize, "page-size", 20, "Results per page")

	favoritesCmd.AddCommand(favoritesListCmd, favoritesToggleCmd)
}

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"favourites", "fav"},
	Short:   "List or toggle saved listings",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the ids of saved listings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := client.NewFavoriteStore(newClient(), log)
		if err := store.Sync(cmd.Context()); err != nil {
			return err
		}
		for _, id := range store.IDs() {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var favoritesToggleCmd = &cobra.Command{
	Use:   "toggle <listing-id>...",
	Short: "Save or unsave listings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := client.NewFavoriteStore(newClient(), log)
		if err := store.Sync(cmd.Context()); err != nil {
			return err
		}
		for _, arg := range args {
			id, err := uuid.Parse(arg)
			if err != nil {
				return fmt.Errorf("invalid listing id %q", arg)
			}
			saved, err := store.Toggle(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("toggle %s: %w", id, err)
			}
			state := "unsaved"
			if saved {
				state = "saved"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, state)
		}
		return nil
	},
}
