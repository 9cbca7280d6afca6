package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/relaychat/internal/chat"
)

// rosterSnapshot mirrors the /api/participants response.
type rosterSnapshot struct {
	Connections  int                `json:"connections"`
	Participants int                `json:"participants"`
	GeneratedAt  time.Time          `json:"generatedAt"`
	Roster       []chat.Participant `json:"roster"`
}

func rosterCmd() *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "List the participants of a running relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			snapshot, err := fetchRoster(ctx, baseURL)
			if err != nil {
				return err
			}
			printRoster(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:3000", "Base URL of the relay")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")

	return cmd
}

func fetchRoster(ctx context.Context, baseURL string) (rosterSnapshot, error) {
	url := strings.TrimRight(baseURL, "/") + "/api/participants"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return rosterSnapshot{}, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return rosterSnapshot{}, fmt.Errorf("fetch roster: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rosterSnapshot{}, fmt.Errorf("fetch roster: unexpected status %s", resp.Status)
	}

	var snapshot rosterSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return rosterSnapshot{}, fmt.Errorf("decode roster: %w", err)
	}
	return snapshot, nil
}

func printRoster(w io.Writer, snapshot rosterSnapshot) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Connection ID", "Display Name", "Joined At", "Online For"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, p := range snapshot.Roster {
		online := snapshot.GeneratedAt.Sub(p.JoinedAt).Truncate(time.Second)
		table.Append([]string{
			string(p.ConnectionID),
			p.DisplayName,
			p.JoinedAt.Format(time.RFC3339),
			online.String(),
		})
	}
	table.Render()

	fmt.Fprintf(w, "\n%d participant(s), %d connection(s)\n", snapshot.Participants, snapshot.Connections)
}
