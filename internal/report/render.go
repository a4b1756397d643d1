package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smarttraffic/trafficd/internal/model"
)

const chartWidth = 50

// RenderText produces the terminal-friendly summary: statistics, a green
// time distribution, and a bar chart of the most recent cycles.
func RenderText(rep Report, records []model.CycleRecord) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "%s\nTRAFFIC CONTROLLER - RUN SUMMARY\n%s\n\n", rule, rule)

	fmt.Fprintf(&b, "Cycles: %d\n", rep.System.TotalCycles)
	if !rep.System.From.IsZero() {
		fmt.Fprintf(&b, "Range:  %s to %s\n",
			rep.System.From.Format("2006-01-02 15:04:05"),
			rep.System.To.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(&b, "\nVehicles\n")
	fmt.Fprintf(&b, "  Total detected:    %d\n", rep.Traffic.TotalVehicles)
	fmt.Fprintf(&b, "  Average per cycle: %.1f\n", rep.Traffic.AvgPerCycle)
	for _, t := range model.VehicleTypes {
		count := rep.Traffic.VehicleBreakdown[t]
		if count == 0 {
			continue
		}
		pct := 0.0
		if rep.Traffic.TotalVehicles > 0 {
			pct = float64(count) / float64(rep.Traffic.TotalVehicles) * 100
		}
		fmt.Fprintf(&b, "  %-12s %5d (%.1f%%)\n", t, count, pct)
	}

	fmt.Fprintf(&b, "\nSignal timing\n")
	fmt.Fprintf(&b, "  Average green: %.1fs\n", rep.Timing.AvgGreen)
	fmt.Fprintf(&b, "  Minimum green: %ds\n", rep.Timing.MinGreen)
	fmt.Fprintf(&b, "  Maximum green: %ds\n", rep.Timing.MaxGreen)
	fmt.Fprintf(&b, "  Average cycle: %.1fs\n", rep.Timing.AvgCycleTime)
	fmt.Fprintf(&b, "  Time vs fixed %ds plan: %.0fs extra green granted\n",
		rep.Performance.BaselineGreen, rep.Performance.TimeSavedSec)

	if len(rep.System.AlgorithmUse) > 1 {
		fmt.Fprintf(&b, "\nAlgorithms\n")
		algs := make([]string, 0, len(rep.System.AlgorithmUse))
		for a := range rep.System.AlgorithmUse {
			algs = append(algs, string(a))
		}
		sort.Strings(algs)
		for _, a := range algs {
			fmt.Fprintf(&b, "  %-12s %d cycles\n", a, rep.System.AlgorithmUse[model.Algorithm(a)])
		}
	}

	if len(records) > 0 {
		b.WriteString(renderDistribution(records))
		b.WriteString(renderChart(records, 20))
	}

	fmt.Fprintf(&b, "\n%s\n", rule)
	return b.String()
}

// renderDistribution prints a histogram of green times over fixed bins.
func renderDistribution(records []model.CycleRecord) string {
	bins := []struct {
		label string
		max   int
	}{
		{"<=30s", 30},
		{"31-45s", 45},
		{"46-60s", 60},
		{"61-90s", 90},
		{"91s+", 1 << 30},
	}
	counts := make([]int, len(bins))
	for _, rec := range records {
		for i, bin := range bins {
			if rec.GreenTime <= bin.max {
				counts[i]++
				break
			}
		}
	}

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\nGreen time distribution\n%s\n", strings.Repeat("-", 60))
	for i, bin := range bins {
		bar := ""
		if maxCount > 0 {
			bar = strings.Repeat("#", counts[i]*40/maxCount)
		}
		pct := 0.0
		if len(records) > 0 {
			pct = float64(counts[i]) / float64(len(records)) * 100
		}
		fmt.Fprintf(&b, "%-8s | %-40s %3d (%5.1f%%)\n", bin.label, bar, counts[i], pct)
	}
	return b.String()
}

// renderChart prints a bar per cycle for the last n cycles' vehicle counts.
func renderChart(records []model.CycleRecord, n int) string {
	if len(records) > n {
		records = records[len(records)-n:]
	}

	maxValue := 1
	for _, rec := range records {
		if rec.VehicleCount > maxValue {
			maxValue = rec.VehicleCount
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\nVehicle count - last %d cycles\n%s\n", len(records), strings.Repeat("-", chartWidth+10))
	for i, rec := range records {
		bar := strings.Repeat("#", rec.VehicleCount*chartWidth/maxValue)
		fmt.Fprintf(&b, "%2d | %s %d\n", i+1, bar, rec.VehicleCount)
	}
	return b.String()
}
