package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dokzlo13/monitord/internal/display"
	"github.com/dokzlo13/monitord/internal/schedule"
)

// FormatSchedule renders every scheduled code with its anchors and the value
// it would be set to at the given instant.
func (s *Scheduler) FormatSchedule(at time.Time) string {
	at = at.In(s.opts.Location)
	hour := schedule.HourOf(at)

	var targets []display.Target
	if s.source != nil {
		targets = s.source.Snapshot()
	}
	if len(targets) == 0 {
		return "No scheduled VCP codes"
	}

	sort.SliceStable(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		if a.Display.LongID() != b.Display.LongID() {
			return a.Display.LongID() < b.Display.LongID()
		}
		return a.Controller.Code < b.Controller.Code
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Schedule at %s (timezone: %s)\n", schedule.ReadableTime(hour), s.opts.Location))
	sb.WriteString(fmt.Sprintf("%-40s %-6s %-24s %-6s %s\n", "DISPLAY", "CODE", "NAME", "NOW", "POINTS"))
	sb.WriteString(strings.Repeat("-", 100) + "\n")

	for _, t := range targets {
		now, err := schedule.InterpolateInt(t.Controller.Points, hour)
		nowStr := fmt.Sprint(now)
		if err != nil {
			nowStr = "-"
		}

		points := make([]string, len(t.Controller.Points))
		for i, p := range t.Controller.Points {
			points[i] = fmt.Sprintf("%s=%g", schedule.ReadableTime(p.Hour), p.Value)
		}

		sb.WriteString(fmt.Sprintf("%-40s %-6s %-24s %-6s %s\n",
			truncate(t.Display.LongID(), 40), t.Controller.Code, truncate(t.Controller.Name, 24), nowStr, strings.Join(points, ", ")))
	}

	st := s.Status()
	switch {
	case st.Last == nil:
		sb.WriteString("Last apply: never\n")
	case st.Last.Err != nil:
		sb.WriteString(fmt.Sprintf("Last apply: failed %s (%v)\n", humanize.Time(st.Last.Batch.At), st.Last.Err))
	default:
		sb.WriteString(fmt.Sprintf("Last apply: %s, %d commands\n", humanize.Time(st.Last.Batch.At), len(st.Last.Batch.Commands)))
	}

	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
