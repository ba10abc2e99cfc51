package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/signalsfoundry/evacuation-simulator/internal/building"
	"github.com/signalsfoundry/evacuation-simulator/internal/journal"
	"github.com/signalsfoundry/evacuation-simulator/internal/sim"
)

// reporter renders the operator-facing guidance panel from snapshots.
type reporter struct {
	out                io.Writer
	overcrowdThreshold float64
}

func newReporter(out io.Writer, overcrowdThreshold float64) *reporter {
	if out == nil {
		out = io.Discard
	}
	return &reporter{out: out, overcrowdThreshold: overcrowdThreshold}
}

// floor prints the building summary for the selected floor.
func (r *reporter) floor(info building.Info, floorID string, data building.FloorData, grid building.GridStats) {
	fmt.Fprintf(r.out, "%s, floor %s\n", info.Name, floorID)
	fmt.Fprintf(r.out, "- spaces: %d (%s m² of %s m² in the building)\n",
		len(data.Spaces), humanize.CommafWithDigits(spaceArea(data), 1), humanize.CommafWithDigits(info.TotalArea, 1))
	fmt.Fprintf(r.out, "- circulation paths: %d (%s cells)\n", len(data.Paths), humanize.Comma(int64(grid.CirculationCells)))
	fmt.Fprintf(r.out, "- obstacles: %d (%s cells)\n", len(data.Obstacles), humanize.Comma(int64(grid.ObstacleCells)))
	if grid.Skipped > 0 {
		fmt.Fprintf(r.out, "- %d records without a footprint were not placed\n", grid.Skipped)
	}
}

// snapshot prints the live statistics panel.
func (r *reporter) snapshot(snap sim.Snapshot) {
	fmt.Fprint(r.out, guidance(snap, r.overcrowdThreshold))
}

// summary prints the end-of-run report.
func (r *reporter) summary(stats sim.Statistics, exits []journal.ExitCount) {
	fmt.Fprintf(r.out, "Run finished after %s (%s ticks)\n", stats.Elapsed, humanize.Comma(int64(stats.Tick)))
	fmt.Fprintf(r.out, "- evacuated: %s of %s spawned, %s still inside\n",
		humanize.Comma(int64(stats.Evacuated)), humanize.Comma(int64(stats.Spawned)), humanize.Comma(int64(stats.Agents)))
	fmt.Fprintf(r.out, "- replans: %s, unresolved route failures: %s\n",
		humanize.Comma(int64(stats.Replans)), humanize.Comma(int64(stats.PathFailures)))
	for _, e := range exits {
		fmt.Fprintf(r.out, "- exit %s: %s agents\n", e.Destination, humanize.Comma(int64(e.Agents)))
	}
}

func guidance(snap sim.Snapshot, overcrowdThreshold float64) string {
	st := snap.Stats
	var b strings.Builder
	fmt.Fprintf(&b, "Live statistics at %s:\n", st.Elapsed)
	fmt.Fprintf(&b, "- agents inside: %s\n", humanize.Comma(int64(st.Agents)))
	fmt.Fprintf(&b, "- evacuated: %s\n", humanize.Comma(int64(st.Evacuated)))
	fmt.Fprintf(&b, "- average density: %s agents/cell (peak %s)\n",
		humanize.FtoaWithDigits(st.AverageDensity, 4), humanize.Ftoa(st.PeakDensity))
	fmt.Fprintf(&b, "- fire sources: %d covering %s cells\n", st.FireSources, humanize.Comma(int64(st.RiskCells)))

	switch {
	case st.FireSources > 0 && st.PeakDensity > overcrowdThreshold:
		b.WriteString("Fire and congestion reported: follow the rerouted exits.\n")
	case st.FireSources > 0:
		b.WriteString("Fire reported: avoid the marked area and follow the highlighted route.\n")
	case st.PeakDensity > overcrowdThreshold:
		b.WriteString("Congestion ahead: alternate routes assigned.\n")
	}
	return b.String()
}

func spaceArea(data building.FloorData) float64 {
	total := 0.0
	for _, s := range data.Spaces {
		total += s.Area
	}
	return total
}
