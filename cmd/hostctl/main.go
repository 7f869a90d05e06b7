package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiBase string
	token   string
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var rootCmd = &cobra.Command{
	Use:           "hostctl",
	Short:         "Talk to a running hostprobe",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return show(http.DefaultClient, apiBase, cmd.OutOrStdout())
	},
}

var useCmd = &cobra.Command{
	Use:   "use [host]",
	Short: "Select the host to observe; prompts when no host is given",
	Long: `Select the host hostprobe observes. "localhost" or an empty answer
selects this machine.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var host string
		if len(args) == 1 {
			host = args[0]
		} else {
			fmt.Fprint(cmd.OutOrStdout(), "Enter a host to observe (empty for this machine): ")
			line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			host = strings.TrimSpace(line)
		}
		return use(http.DefaultClient, apiBase, token, host, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", envOr("HOSTPROBE_API", "http://127.0.0.1:2048"), "hostprobe base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("HOSTPROBE_CONTROL_TOKEN"), "control token for host switching")
	rootCmd.AddCommand(showCmd, useCmd)
}

type snapshot struct {
	Name *string `json:"name"`
	Data map[string]struct {
		Status     string    `json:"status"`
		Data       string    `json:"data"`
		ErrorData  string    `json:"errorData"`
		CapturedAt time.Time `json:"capturedAt"`
	} `json:"data"`
}

func show(c *http.Client, base string, out io.Writer) error {
	resp, err := c.Get(strings.TrimRight(base, "/") + "/data/current")
	if err != nil {
		return fmt.Errorf("contacting hostprobe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hostprobe returned %s", resp.Status)
	}
	var snap snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	host := "this machine"
	if snap.Name != nil {
		host = *snap.Name
	}
	fmt.Fprintf(out, "host: %s\n", host)

	names := make([]string, 0, len(snap.Data))
	for n := range snap.Data {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		r := snap.Data[n]
		fmt.Fprintf(out, "\n== %s [%s %s] ==\n", n, r.Status, r.CapturedAt.Local().Format(time.TimeOnly))
		body := r.Data
		if r.Status == "error" {
			body = r.ErrorData
		}
		fmt.Fprintln(out, strings.TrimRight(body, "\n"))
	}
	return nil
}

func use(c *http.Client, base, token, host string, out io.Writer) error {
	var payload any = map[string]any{"name": nil}
	if host != "" {
		payload = map[string]string{"name": host}
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPut, strings.TrimRight(base, "/")+"/api/host", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("contacting hostprobe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("hostprobe returned %s", resp.Status)
	}
	if host == "" {
		host = "this machine"
	}
	fmt.Fprintf(out, "Now observing %s.\n", host)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
