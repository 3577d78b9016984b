package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/af-corp/concierge/internal/router/adapters"
	"github.com/af-corp/concierge/internal/types"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func providersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect configured LLM providers",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List providers in fallback order with their credential status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProviders()
		},
	}

	var prompt string
	testCmd := &cobra.Command{
		Use:   "test <id>",
		Short: "Send one prompt to a provider, ignoring breaker and cooldown state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return testProvider(cmd.Context(), args[0], prompt)
		},
	}
	testCmd.Flags().StringVarP(&prompt, "prompt", "p", "Reply with the single word: pong", "prompt to send")

	cmd.AddCommand(listCmd, testCmd)
	return cmd
}

func listProviders() error {
	setupLogger("warn", "text")
	loader, err := loadConfig()
	if err != nil {
		return err
	}
	a := newApp(loader, nil, nil)

	enabled := a.registry.ListEnabled()
	order := make(map[string]int, len(enabled))
	for i, p := range enabled {
		order[p.ID] = i + 1
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Order", "ID", "Type", "Model", "Priority", "Credential", "Status"})
	table.SetBorder(true)
	table.SetRowLine(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	unknown := 0
	for _, p := range a.registry.All() {
		pos := "-"
		if n, ok := order[p.ID]; ok {
			pos = strconv.Itoa(n)
		}
		cred := a.registry.ResolveCredential(p)
		credText := color.GreenString(string(cred.Source))
		if !cred.Usable() {
			credText = color.RedString(string(cred.Source))
		}

		status := color.GreenString("Ready")
		_, ready := a.registry.Adapter(p.ID)
		_, known := adapters.Lookup(p.Type)
		switch {
		case !p.Enabled:
			status = color.YellowString("Disabled")
		case !known:
			status = color.RedString("Unknown type")
			unknown++
		case !ready:
			status = color.RedString("Skipped")
		}

		table.Append([]string{pos, p.ID, p.Type, p.Model, strconv.Itoa(p.Priority), credText, status})
	}
	table.Render()

	if unknown > 0 {
		color.Red("Known provider types: %s", strings.Join(adapters.Tags(), ", "))
	}
	if len(enabled) == 0 {
		color.Yellow("No enabled providers: every LLM call will fall back to templates")
	}
	return nil
}

func testProvider(ctx context.Context, id, prompt string) error {
	setupLogger("warn", "text")
	loader, err := loadConfig()
	if err != nil {
		return err
	}
	a := newApp(loader, nil, nil)

	p, ok := a.registry.Get(id)
	if !ok {
		color.Red("Error: provider %q not found", id)
		return fmt.Errorf("provider %q not found", id)
	}
	if _, ready := a.registry.Adapter(id); !ready {
		color.Red("Error: provider %q has no adapter (disabled or missing credential)", id)
		return fmt.Errorf("provider %q not ready", id)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	text, err := a.registry.Chat(ctx, p, adapters.ChatRequest{
		Messages:  []types.Message{{Role: types.RoleUser, Content: prompt}},
		MaxTokens: 50,
	})
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		if adapters.IsRateLimit(err) {
			color.Yellow("✗ %s is rate limited (%s): %v", id, elapsed, err)
		} else {
			color.Red("✗ %s failed (%s): %v", id, elapsed, err)
		}
		return err
	}
	if text == "" {
		color.Yellow("✗ %s answered with no text (%s)", id, elapsed)
		return fmt.Errorf("provider %q returned empty text", id)
	}
	color.Green("✓ %s answered in %s", id, elapsed)
	fmt.Println(text)
	return nil
}
