package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// newRemoteCmd talks to the loopback admin endpoints of a running server.
func newRemoteCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Call the admin endpoints of a running server",
	}
	cmd.PersistentFlags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server base url")

	endpoint := func(parts ...string) string {
		for i, p := range parts {
			parts[i] = url.PathEscape(p)
		}
		return strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/admin/v1/games/" + strings.Join(parts, "/")
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "games",
			Short: "List hosted games",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, args []string) error {
				return doRemote(c.OutOrStdout(), http.MethodGet, strings.TrimSuffix(endpoint(), "/"))
			},
		},
		&cobra.Command{
			Use:   "snapshot <game>",
			Short: "Ask a game to write a snapshot now",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				return doRemote(c.OutOrStdout(), http.MethodPost, endpoint(args[0], "snapshot"))
			},
		},
		&cobra.Command{
			Use:   "advance <game>",
			Short: "Advance a game by one period",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				return doRemote(c.OutOrStdout(), http.MethodPost, endpoint(args[0], "advance"))
			},
		},
		&cobra.Command{
			Use:   "delete-game <game>",
			Short: "Delete a hosted game",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				return doRemote(c.OutOrStdout(), http.MethodDelete, endpoint(args[0]))
			},
		},
	)
	return cmd
}

func doRemote(out io.Writer, method, u string) error {
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return err
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(out, strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, u, resp.Status)
	}
	return nil
}
