package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmcleod/cardledger/portal"
	"github.com/jmcleod/cardledger/session"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file-or-glob>...",
	Short: "Upload statement PDFs",
	Long: `Stage the files matching the given paths or glob patterns (** is
supported) and submit them as one batch. Files whose extension is not
accepted are listed and left out.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return guarded(cmd, session.RequireUser, func(ctx context.Context, p *portal.Portal) error {
			files, err := p.Pick(args...)
			if err != nil {
				return err
			}
			for _, name := range p.Select(files) {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: not an accepted file type\n", name)
			}
			res, err := p.Upload(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Summary())
			if res.Len() == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tISSUER\tSTATUS")
			for _, f := range res.Processed {
				fmt.Fprintf(tw, "%s\t%s\tprocessed\n", f.Filename, f.Issuer)
			}
			for _, f := range res.Skipped {
				fmt.Fprintf(tw, "%s\t-\t%s\n", f.Filename, f.Reason)
			}
			return tw.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
