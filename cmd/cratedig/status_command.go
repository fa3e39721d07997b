package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cratedig/internal/api"
	"cratedig/internal/ipc"
	"cratedig/internal/library"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		missingLocal bool
		unresolved   string
		likedOnly    bool
		externalOnly bool
		limit        int
		offset       int
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List library tracks and their match state",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := api.StatusQuery{
				MissingLocalOnly:   missingLocal,
				UnresolvedProvider: unresolved,
				LikedOnly:          likedOnly,
				ExternalOnly:       externalOnly,
				Limit:              limit,
				Offset:             offset,
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StatusList(query)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Page)
				}
				renderStatusPage(cmd, resp.Page)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&missingLocal, "missing-local", false, "Only tracks without a usable local file")
	cmd.Flags().StringVar(&unresolved, "unresolved", "", "Only tracks unresolved on the given provider (discogs|musicbrainz)")
	cmd.Flags().BoolVar(&likedOnly, "liked", false, "Only liked tracks")
	cmd.Flags().BoolVar(&externalOnly, "external", false, "Only tracks present in an external DJ library")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (default 100, max 500)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func renderStatusPage(cmd *cobra.Command, page api.StatusPageView) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	headers := []string{"Track", "Title", "Artist", "Discogs", "MusicBrainz", "Local", "Liked"}
	rows := make([][]string, 0, len(page.Rows))
	for _, row := range page.Rows {
		title := row.Title
		if row.Conflicted {
			title += " (conflict)"
		}
		rows = append(rows, []string{
			row.TrackID,
			title,
			row.Artist,
			providerCell(row.Providers, library.ProviderDiscogs, colorize),
			providerCell(row.Providers, library.ProviderMusicBrainz, colorize),
			yesNo(row.LocalAvailable),
			yesNo(row.Liked),
		})
	}
	fmt.Fprintln(out, renderTable(headers, rows, nil))
	fmt.Fprintf(out, "Showing %d of %d tracks (offset %d)\n", len(page.Rows), page.Total, page.Offset)
}

func providerCell(providers map[string]api.ProviderView, provider library.Provider, colorize bool) string {
	view, ok := providers[string(provider)]
	if !ok {
		view.Status = string(library.StatusUnchecked)
	}
	label := view.Status
	if view.Status == string(library.StatusSuccess) && view.Confidence > 0 {
		label = fmt.Sprintf("%s (%.0f)", view.Status, view.Confidence)
	}
	if !colorize {
		return label
	}
	switch view.Status {
	case string(library.StatusSuccess):
		return ansiGreen + label + ansiReset
	case string(library.StatusAmbiguous):
		return ansiYellow + label + ansiReset
	case string(library.StatusError):
		return ansiRed + label + ansiReset
	default:
		return label
	}
}

func parseProviderFlag(value string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "", nil
	}
	if !library.ValidProvider(library.Provider(trimmed)) {
		return "", fmt.Errorf("unknown provider %q (expected discogs or musicbrainz)", value)
	}
	return trimmed, nil
}
