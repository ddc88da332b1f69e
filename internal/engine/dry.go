package engine

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"momo-player/internal/player"
)

// RunSimulation prints the projected schedule from the current entry to
// the end of the playlist without touching any element or the database.
func (e *Engine) RunSimulation(w io.Writer, start time.Time, durationOf func(src string) float64) {
	fmt.Fprintf(w, "\n--- DRY PLAYLIST SIMULATION (%s) ---\n", e.category)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "START\t#\tTITLE\tSUBTITLE\tLENGTH")
	fmt.Fprintln(tw, "-----\t-\t-----\t--------\t------")

	entries := e.playlist.Entries()
	from := e.playlist.Index()
	if from < 0 {
		tw.Flush()
		fmt.Fprintln(w, "Playlist is empty.")
		return
	}

	at := start
	var total float64
	for i := from; i < len(entries); i++ {
		v := entries[i]
		d := durationOf(v.Source())
		length := player.FormatTime(d)
		if d <= 0 {
			length = "--:--"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			at.Format("15:04:05"),
			i+1,
			truncate(v.Title, 30),
			truncate(v.Subtitle, 25),
			length,
		)
		if d > 0 {
			at = at.Add(time.Duration(d * float64(time.Second)))
			total += d
		}
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d videos, %s total, ends at %s\n", len(entries)-from, player.FormatTime(total), at.Format("15:04:05"))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}
