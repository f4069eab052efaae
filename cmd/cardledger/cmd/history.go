package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/portal"
	"github.com/jmcleod/cardledger/session"
)

var (
	issuer     string
	period     string
	jsonOutput bool
)

func criteriaFromFlags() (client.Criteria, error) {
	p, err := client.ParsePeriod(period)
	if err != nil {
		return client.Criteria{}, err
	}
	return client.Criteria{Issuer: issuer, Period: p}, nil
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List processed statements",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		criteria, err := criteriaFromFlags()
		if err != nil {
			return err
		}
		return guarded(cmd, session.RequireUser, func(ctx context.Context, p *portal.Portal) error {
			view, err := p.History(ctx, &criteria)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}

			fmt.Fprintf(out, "Filters: %s\n", view.Summary)
			fmt.Fprintf(out, "Issuers: %s\n\n", strings.Join(view.Issuers, ", "))
			if len(view.Records) == 0 {
				fmt.Fprintln(out, "No statements found.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tISSUER\tFIELDS")
			for _, rec := range view.Records {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.Filename, rec.Issuer, formatFields(rec.Data))
			}
			return tw.Flush()
		})
	},
}

func formatFields(fields client.Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	return strings.Join(parts, " ")
}

var exportCmd = &cobra.Command{
	Use:       "export <xlsx|pdf|docx>",
	Short:     "Export the filtered statement history",
	Long:      `Download an export of the statements matching --issuer and --period into the download directory, or archive it to the configured S3 bucket.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"xlsx", "pdf", "docx"},
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := client.ParseExportFormat(args[0])
		if err != nil {
			return err
		}
		criteria, err := criteriaFromFlags()
		if err != nil {
			return err
		}
		return guarded(cmd, session.RequireUser, func(ctx context.Context, p *portal.Portal) error {
			artifact, err := p.ExportCriteria(ctx, format, criteria)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d bytes to %s\n", artifact.Size, artifact.Location)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{historyCmd, exportCmd} {
		c.Flags().StringVar(&issuer, "issuer", "", "Only statements from this card issuer")
		c.Flags().StringVar(&period, "period", "", "Only statements uploaded in the last day, week, month or year")
	}
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the history view as JSON")
	rootCmd.AddCommand(historyCmd, exportCmd)
}
