package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wifisim/wifisim-go/pkg/log"
)

// RunStats summarizes the capture at path.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats, err := log.Collect(reader)
	if err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *log.Stats) {
	fmt.Fprintln(w, "=== wifisim Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.Total > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.First.UTC().Format(time.RFC3339),
			stats.Last.UTC().Format(time.RFC3339))
		fmt.Fprintf(w, "Duration: %s\n", stats.Last.Sub(stats.First).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.Total)
	fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, l := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerService} {
		if n := stats.ByLayer[l]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", l, n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if n := stats.ByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", c, n)
		}
	}

	if len(stats.ByMessage) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Messages:")
		printCounts(w, stats.ByMessage)
	}
	if len(stats.Identities) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Devices (%d):\n", len(stats.Identities))
		printCounts(w, stats.Identities)
	}
}

func printCounts(w io.Writer, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-20s %d\n", k, counts[k])
	}
}
