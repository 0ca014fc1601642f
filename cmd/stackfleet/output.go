package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/fortna/stackfleet/orchestrator"
	"github.com/fortna/stackfleet/reconciler"
	"github.com/fortna/stackfleet/types"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func checkFormat(f string) error {
	if f != formatTable && f != formatJSON {
		return fmt.Errorf("unknown output format %q (want table or json)", f)
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(out io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

var actionOrder = []reconciler.Action{
	reconciler.ActionCreate,
	reconciler.ActionUpdate,
	reconciler.ActionReplace,
	reconciler.ActionDelete,
}

func printRunResult(out io.Writer, r *orchestrator.RunResult, format string) error {
	if format == formatJSON {
		return printJSON(out, r)
	}

	status := text.FgGreen.Sprint("ok")
	if !r.Success {
		status = text.FgRed.Sprint("FAILED")
	}
	fmt.Fprintf(out, "Run %s: %s in %s\n", r.RunID, status, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Discovered: %d  Selected: %d  Provisioned: %d  Writes: %d\n",
		r.Discovered, len(r.Selected), len(r.Provisioned), r.TotalWrites())

	if len(r.Provisioned) > 0 {
		t := newTable(out, table.Row{"Client", "Slug", "Stack", "Policy", "Token", "Datasource", "Expires"})
		for _, c := range r.Provisioned {
			t.AppendRow(table.Row{
				c.Client.Name, c.Slug, c.StackID, c.AccessPolicyID, c.TokenID, c.DatasourceUID,
				c.TokenExpiresAt.Format("2006-01-02"),
			})
		}
		t.Render()
	}

	if len(r.Actions) > 0 {
		families := make([]string, 0, len(r.Actions))
		for f := range r.Actions {
			families = append(families, f)
		}
		sort.Strings(families)

		t := newTable(out, table.Row{"Family", "Create", "Update", "Replace", "Delete"})
		for _, f := range families {
			row := table.Row{f}
			for _, a := range actionOrder {
				row = append(row, r.Actions[f][a])
			}
			t.AppendRow(row)
		}
		t.Render()
	}

	if r.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", text.FgRed.Sprint(r.Error))
	}
	return nil
}

func printPlan(out io.Writer, p *orchestrator.PlanResult, format string) error {
	if format == formatJSON {
		return printJSON(out, p)
	}

	fmt.Fprintf(out, "Dry run: %d discovered, %d selected\n", p.Discovered, len(p.Clients))
	t := newTable(out, table.Row{"Client", "Slug", "Family", "Key", "Action", "Match", "Conflicts"})
	for _, c := range p.Clients {
		for _, s := range c.Steps {
			match := s.MatchID
			if match == "" {
				match = "-"
			}
			t.AppendRow(table.Row{c.Client.Name, c.Slug, s.Family, s.Key, actionColor(s.Action), match, s.Conflicts})
		}
	}
	t.Render()
	return nil
}

func actionColor(a reconciler.Action) string {
	switch a {
	case reconciler.ActionCreate:
		return text.FgGreen.Sprint(a)
	case reconciler.ActionReplace, reconciler.ActionDelete:
		return text.FgYellow.Sprint(a)
	default:
		return string(a)
	}
}

func printClients(out io.Writer, sel *orchestrator.Selection, format string) error {
	if format == formatJSON {
		return printJSON(out, sel)
	}

	fmt.Fprintf(out, "Main stack: %s (%s)\n", sel.MainStack.Name, sel.MainStack.RegionSlug)
	fmt.Fprintf(out, "Discovered: %d  Selected: %d\n", sel.Discovered, len(sel.Selected))
	printClientTable(out, sel.Selected)
	return nil
}

func printClientTable(out io.Writer, clients []types.Client) {
	t := newTable(out, table.Row{"Key", "Name", "Location", "Environment"})
	for _, c := range clients {
		t.AppendRow(table.Row{c.Key, c.Name, c.Location, c.Environment})
	}
	t.Render()
}

func printStacks(out io.Writer, stacks []types.Stack, format string) error {
	if format == formatJSON {
		return printJSON(out, stacks)
	}

	t := newTable(out, table.Row{"ID", "Name", "Slug", "Region", "Status", "URL"})
	for _, s := range stacks {
		t.AppendRow(table.Row{s.ID, s.Name, s.Slug, s.RegionSlug, s.Status, s.URL})
	}
	t.Render()
	return nil
}
