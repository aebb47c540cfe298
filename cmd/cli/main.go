package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/trackfetch-go/internal/app"
	"github.com/yourusername/trackfetch-go/internal/domain"
	"github.com/yourusername/trackfetch-go/internal/resolver"
)

var (
	serverURL   string
	noAutoStart bool
	verbose     bool
	rootCmd     = &cobra.Command{
		Use:           "trackfetch",
		Short:         "trackfetch CLI - quality-aware track downloader for Soulseek",
		Long:          `A command-line interface for requesting tracks and managing downloads on a trackfetch server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8686", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(cancelAllCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(unblockCmd)
	rootCmd.AddCommand(blocklistCmd)
	rootCmd.AddCommand(configCmd)

	fetchCmd.Flags().Int("duration", 0, "Expected duration in seconds")
	fetchCmd.Flags().Float64("bpm", 0, "Expected BPM")
	fetchCmd.Flags().String("key", "", "Expected Camelot key (e.g. 8A)")
	listCmd.Flags().StringP("state", "s", "", "Filter by state")
	blockCmd.Flags().StringP("reason", "r", "", "Why the peer is blocked")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
}

// client returns an API client, starting the server first unless --no-auto-start
func client() *apiClient {
	if !noAutoStart {
		if err := ensureServerRunning(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	return newAPIClient(strings.TrimRight(serverURL, "/"))
}

func trackQuery(cmd *cobra.Command, args []string) domain.TrackQuery {
	query := domain.TrackQuery{Artist: args[0], Title: args[1]}
	query.DurationSeconds, _ = cmd.Flags().GetInt("duration")
	query.BPM, _ = cmd.Flags().GetFloat64("bpm")
	query.Key, _ = cmd.Flags().GetString("key")
	return query
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <artist> <title>",
	Short: "Search for a track and queue the best candidate",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var job domain.Job
		if err := client().post("/api/v1/jobs", trackQuery(cmd, args), &job); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Track queued!\n")
		fmt.Fprintf(out, "ID:     %s\n", job.ID)
		fmt.Fprintf(out, "State:  %s\n", job.State)
		fmt.Fprintf(out, "Peer:   %s\n", job.Candidate.PeerID)
		fmt.Fprintf(out, "File:   %s\n", job.Candidate.Filename)
		fmt.Fprintf(out, "Target: %s\n", job.Destination)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <artist> <title>",
	Short: "Preview ranked candidates without downloading",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Candidates []resolver.Ranked `json:"candidates"`
		}
		if err := client().post("/api/v1/search", trackQuery(cmd, args), &result); err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIER\tSCORE\tFORMAT\tKBPS\tPEER\tSLOT\tFILE")
		for _, c := range result.Candidates {
			tier := c.Tier.String()
			if c.Fake {
				tier += " (fake)"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\t%s\n",
				tier, c.Score, c.Format, c.BitrateKbps,
				c.PeerID, slot(c.FreeSlot), truncate(domain.BaseName(c.Filename), 50))
		}
		return w.Flush()
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/v1/jobs"
		if state, _ := cmd.Flags().GetString("state"); state != "" {
			path += "?state=" + url.QueryEscape(state)
		}

		var result struct {
			Jobs []domain.Job `json:"jobs"`
		}
		if err := client().get(path, &result); err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tPROGRESS\tPEER\tTRACK")
		for _, job := range result.Jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				truncate(job.ID, 8),
				job.State,
				progress(job),
				job.Candidate.PeerID,
				truncate(job.Query.Text(), 40))
		}
		return w.Flush()
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get job details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var job domain.Job
		if err := client().get("/api/v1/jobs/"+url.PathEscape(args[0]), &job); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Job Details:\n")
		fmt.Fprintf(out, "  ID:       %s\n", job.ID)
		fmt.Fprintf(out, "  Track:    %s\n", job.Query.Text())
		fmt.Fprintf(out, "  State:    %s\n", job.State)
		fmt.Fprintf(out, "  Progress: %s\n", progress(job))
		fmt.Fprintf(out, "  Peer:     %s\n", job.Candidate.PeerID)
		fmt.Fprintf(out, "  File:     %s\n", job.Candidate.Filename)
		fmt.Fprintf(out, "  Target:   %s\n", job.Destination)
		fmt.Fprintf(out, "  Retries:  %d\n", job.RetryCount)
		fmt.Fprintf(out, "  Created:  %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
		if job.ErrorMessage != "" {
			fmt.Fprintf(out, "  Error:    %s\n", job.ErrorMessage)
		}
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().post("/api/v1/jobs/"+url.PathEscape(args[0])+"/cancel", nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Job cancelled")
		return nil
	},
}

var cancelAllCmd = &cobra.Command{
	Use:   "cancel-all",
	Short: "Cancel every job and pause dispatch",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Cancelled int `json:"cancelled"`
		}
		if err := client().post("/api/v1/jobs/cancel-all", nil, &result); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d job(s); dispatch paused\n", result.Cancelled)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats domain.JobStats
		if err := client().get("/api/v1/jobs/stats", &stats); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Job Statistics:")
		fmt.Fprintf(out, "  Total:       %d\n", stats.Total)
		fmt.Fprintf(out, "  Queued:      %d\n", stats.Queued)
		fmt.Fprintf(out, "  Downloading: %d\n", stats.Downloading)
		fmt.Fprintf(out, "  Completed:   %d\n", stats.Completed)
		fmt.Fprintf(out, "  Failed:      %d\n", stats.Failed)
		fmt.Fprintf(out, "  Cancelled:   %d\n", stats.Cancelled)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show the health monitor report",
	RunE: func(cmd *cobra.Command, args []string) error {
		var report app.HealthReport
		if err := client().get("/api/v1/jobs/health", &report); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Checked: %s  Stalled: %d  Zombies: %d\n",
			report.CheckedAt.Format("15:04:05"), report.Stalled, report.Zombies)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tSTATUS\tSTALLS\tRETRIES\tBYTES\tZOMBIE")
		for _, h := range report.Jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%t\n",
				truncate(h.JobID, 8), h.State, h.Status, h.StallTicks, h.RetryCount, h.BytesTransferred, h.Zombie)
		}
		return w.Flush()
	},
}

var blockCmd = &cobra.Command{
	Use:   "block <peer>",
	Short: "Block a peer from ever being selected",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		body := map[string]string{"peer_id": args[0], "reason": reason}
		if err := client().post("/api/v1/blocklist", body, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Blocked %s\n", args[0])
		return nil
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <peer>",
	Short: "Remove a peer from the block list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().delete("/api/v1/blocklist/"+url.PathEscape(args[0]), nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Unblocked %s\n", args[0])
		return nil
	},
}

var blocklistCmd = &cobra.Command{
	Use:   "blocklist",
	Short: "List blocked peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Peers []domain.BlockedPeer `json:"peers"`
		}
		if err := client().get("/api/v1/blocklist", &result); err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PEER\tSINCE\tREASON")
		for _, peer := range result.Peers {
			fmt.Fprintf(w, "%s\t%s\t%s\n", peer.PeerID, peer.CreatedAt.Format("2006-01-02"), peer.Reason)
		}
		return w.Flush()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(os.Getenv("HOME"), ".trackfetch", "config.yaml")
		if len(args) == 1 {
			path = args[0]
		}

		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := app.SaveConfig(domain.DefaultConfig(), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
		return nil
	},
}

func progress(job domain.Job) string {
	if job.RemoteQueued {
		if job.QueuePosition > 0 {
			return fmt.Sprintf("remote #%d", job.QueuePosition)
		}
		return "remote queue"
	}
	return fmt.Sprintf("%.0f%%", job.Progress*100)
}

func slot(free bool) string {
	if free {
		return "free"
	}
	return "busy"
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
