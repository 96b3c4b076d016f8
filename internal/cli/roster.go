package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"scrabble-bot/internal/export"
	"scrabble-bot/internal/factory"
	"scrabble-bot/internal/models"
	"scrabble-bot/internal/util"
)

func newRosterCmd() *cobra.Command {
	var (
		format string
		search string
	)

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Print the current roster from the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			app, err := factory.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Roster.Load(cmd.Context()); err != nil {
				return err
			}
			return printRoster(cmd.OutOrStdout(), app.Roster.Snapshot(), search, format, cfg.Event.Capacity)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json, csv")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Only players whose name or category contains this")
	return cmd
}

type rosterLine struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Category     string `json:"category"`
	RatingID     string `json:"rating_id,omitempty"`
	Status       string `json:"status"`
	RegisteredAt string `json:"registered_at"`
}

func printRoster(w io.Writer, snap models.Roster, search, format string, capacity int) error {
	items := snap.Search(search)

	switch format {
	case "csv":
		data, err := export.CSV(snap)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err

	case "json":
		out := make([]rosterLine, 0, len(items))
		for _, r := range items {
			out = append(out, rosterLine{
				ID:           r.ID,
				Name:         r.Name,
				Email:        r.Email,
				Phone:        r.Phone,
				Category:     string(r.Category),
				RatingID:     r.RatingID,
				Status:       string(r.Status),
				RegisteredAt: r.RegisteredAt.UTC().Format("2006-01-02T15:04:05Z"),
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)

	case "text", "":
		stats := snap.Stats(capacity)
		fmt.Fprintf(w, "Registered: %d", stats.Total)
		if capacity > 0 {
			fmt.Fprintf(w, " / %d (%d%%)", capacity, stats.Occupancy)
		}
		fmt.Fprintf(w, ", confirmed: %d\n", stats.Confirmed)
		for i, r := range items {
			fmt.Fprintf(w, "%3d. [%-9s] %s · %s · %s\n", i+1, r.Status, r.Name, r.Category.Short(), util.FormatRegisteredAt(r.RegisteredAt))
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}
