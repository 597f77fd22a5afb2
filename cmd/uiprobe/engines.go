package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sre-norns/uiprobe/pkg/engine"
	"github.com/sre-norns/uiprobe/pkg/prob"
)

type EnginesCmd struct {
	Probes bool `help:"Also list registered probe kinds"`
}

func (c *EnginesCmd) Run(cfg *commandContext) error {
	engines := engine.List()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Engine", "Library", "Version"})
	for _, name := range engine.Names() {
		info := engines[name]
		t.AppendRow(table.Row{name, info.Library, info.Version})
	}
	t.SetStyle(table.StyleLight)
	t.Render()

	if !c.Probes {
		return nil
	}

	probes := table.NewWriter()
	probes.SetOutputMirror(os.Stdout)
	probes.AppendHeader(table.Row{"Kind", "Content type", "Version", "Produces"})
	for kind, info := range prob.ListProbs() {
		probes.AppendRow(table.Row{kind, info.ContentType, info.Version, info.Produce})
	}
	probes.SortBy([]table.SortBy{{Number: 1, Mode: table.Asc}})
	probes.SetStyle(table.StyleLight)
	probes.Render()

	return nil
}
