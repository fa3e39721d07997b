package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cratedig/internal/ipc"
)

func newCandidatesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "candidates <track-id> <provider>",
		Short: "List retained match candidates for a track on one provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := parseProviderFlag(args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Candidates(args[0], provider)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Pending {
					fmt.Fprintln(out, "Lookup scheduled; run the command again shortly.")
					return nil
				}
				if len(resp.Candidates) == 0 {
					fmt.Fprintln(out, "No candidates retained for this pair.")
					return nil
				}
				headers := []string{"Release", "Score"}
				rows := make([][]string, 0, len(resp.Candidates))
				for _, candidate := range resp.Candidates {
					rows = append(rows, []string{
						candidate.ReleaseID,
						fmt.Sprintf("%.1f", candidate.Score),
					})
				}
				fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON including raw provider payloads")
	return cmd
}

func newConfirmCommand(ctx *commandContext) *cobra.Command {
	var payloadPath string

	cmd := &cobra.Command{
		Use:   "confirm <track-id> <provider> <release-id>",
		Short: "Confirm a release as the match for a track",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := parseProviderFlag(args[1])
			if err != nil {
				return err
			}
			var raw json.RawMessage
			if payloadPath != "" {
				raw, err = readRawPayload(cmd, payloadPath)
				if err != nil {
					return err
				}
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Confirm(args[0], provider, args[2], raw); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Confirmed %s on %s as %s\n", args[0], provider, args[2])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&payloadPath, "payload", "", "JSON release document to store with the match (- for stdin)")
	return cmd
}

// readRawPayload loads and validates a JSON document from a file or stdin.
func readRawPayload(cmd *cobra.Command, path string) (json.RawMessage, error) {
	var reader io.Reader
	if strings.TrimSpace(path) == "-" {
		reader = cmd.InOrStdin()
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open payload file: %w", err)
		}
		defer file.Close()
		reader = file
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func newIgnoreCommand(ctx *commandContext) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "ignore <track-id>",
		Short: "Mark a track as deliberately unmatched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseProviderFlag(provider)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Ignore(args[0], parsed); err != nil {
					return err
				}
				if parsed == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Ignoring %s on all providers\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Ignoring %s on %s\n", args[0], parsed)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Restrict to one provider (default: all)")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "retry <track-id>",
		Short: "Schedule a fresh catalog lookup for a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseProviderFlag(provider)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Retry(args[0], parsed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Lookup scheduled (job %s)\n", resp.JobID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Restrict to one provider (default: all)")
	return cmd
}
