package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/af-corp/concierge/internal/classify"
	"github.com/af-corp/concierge/internal/types"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	var fastOnly bool
	cmd := &cobra.Command{
		Use:   "classify <text>",
		Short: "Dry-run the classification pipeline on one message",
		Long: `Classify a message the way the server would, without routing it:
no escalation, forwarding or diary write happens. With --fast only the local
regex, fuzzy and semantic tiers run and no provider is called.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runClassify(ctx, strings.Join(args, " "), fastOnly)
		},
	}
	cmd.Flags().BoolVar(&fastOnly, "fast", false, "only run the local tiers")
	return cmd
}

func runClassify(ctx context.Context, text string, fastOnly bool) error {
	setupLogger("warn", "text")
	loader, err := loadConfig()
	if err != nil {
		return err
	}
	a := newApp(loader, nil, nil)
	cat := a.pipeline.Catalog()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.SetBorder(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	if fastOnly {
		m, ok := a.pipeline.FastMatch(ctx, text)
		if !ok {
			color.Yellow("No local tier matched; the server would call a provider")
			return nil
		}
		table.AppendBulk([][]string{
			{"Intent", m.Intent},
			{"Confidence", fmt.Sprintf("%.2f", m.Confidence)},
			{"Source", string(m.Source)},
			{"Action", string(cat.Action(m.Intent))},
			{"Language", classify.DetectLanguage(text)},
		})
		table.Render()
		return nil
	}

	res := a.pipeline.Classify(ctx, classify.Request{Text: text})
	provider := res.Provider
	if provider == "" {
		provider = "-"
	}
	table.AppendBulk([][]string{
		{"Intent", res.Intent},
		{"Confidence", fmt.Sprintf("%.2f", res.Confidence)},
		{"Source", string(res.Source)},
		{"Action", string(cat.Action(res.Intent))},
		{"Language", res.Language},
		{"Message type", string(res.MessageType)},
		{"Provider", provider},
		{"Latency", res.Latency.String()},
		{"Reply", res.Reply},
	})
	table.Render()

	if res.Source == types.SourceFallback {
		color.Red("Every provider was skipped or failed")
	}
	return nil
}
