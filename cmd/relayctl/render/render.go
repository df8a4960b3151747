package render

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/animus-labs/spec-relay/cmd/relayctl/cliutil"
	"github.com/animus-labs/spec-relay/internal/report"
	"github.com/spf13/cobra"
)

// NewCmd creates `relayctl render-report`.
func NewCmd() *cobra.Command {
	var summaryPath, outPath string
	var linkTTL time.Duration
	cmd := &cobra.Command{
		Use:           "render-report",
		Short:         "Render a run summary into the report email HTML",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(summaryPath) == "" {
				return fmt.Errorf("missing required flag: --summary")
			}
			summary, _, err := cliutil.ReadSummary(summaryPath)
			if err != nil {
				return err
			}
			html, err := report.RenderWithLinkTTL(summary, linkTTL)
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), html)
				return err
			}
			return os.WriteFile(outPath, []byte(html), 0o644)
		},
	}
	cmd.Flags().StringVarP(&summaryPath, "summary", "s", "", "Path to summary.json")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write HTML to this file instead of stdout")
	cmd.Flags().DurationVar(&linkTTL, "link-ttl", 0, "Expiry of the artifact links, shown under them when set")
	return cmd
}
