package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/pep8bot/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	failureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

func styleStatus(s domain.Status) string {
	switch s {
	case domain.StatusSuccess:
		return successStyle.Render(string(s))
	case domain.StatusFailure:
		return failureStyle.Render(string(s))
	case domain.StatusError:
		return errorStyle.Render(string(s))
	default:
		return dimmedStyle.Render(string(s))
	}
}

func styleRunStatus(s domain.RunStatus) string {
	switch s {
	case domain.RunCompleted:
		return successStyle.Render(string(s))
	case domain.RunFailed:
		return errorStyle.Render(string(s))
	default:
		return dimmedStyle.Render(string(s))
	}
}

func shortSHA(sha string) string {
	if len(sha) > 10 {
		return sha[:10]
	}
	return sha
}

// writeCommits prints commit records as a table. Styled columns come last
// so escape codes do not disturb alignment.
func writeCommits(out io.Writer, recs []*domain.CommitRecord, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SHA\tREPOSITORY\tERRORS\tUPDATED\tSTATUS")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s/%s\t%s\t%s\t%s\n",
			shortSHA(r.SHA),
			r.Username, r.Reponame,
			humanize.Comma(int64(r.ErrorCount)),
			humanize.RelTime(r.UpdatedAt, now, "ago", "from now"),
			styleStatus(r.Status))
	}
	return w.Flush()
}

func writeRuns(out io.Writer, runs []*domain.Run, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREPOSITORY\tCOMMITS\tSTARTED\tDURATION\tSTATUS\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s/%s\t%d/%d\t%s\t%s\t%s\t%s\n",
			shortSHA(r.ID),
			r.Username, r.Reponame,
			r.CommitsDone, r.CommitsTotal,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.Duration(now).Round(time.Second),
			styleRunStatus(r.Status),
			firstLine(r.Error))
	}
	return w.Flush()
}

func renderStatus(queueKey string, pending int64, counts map[domain.Status]int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("PEP8bot"))
	fmt.Fprintf(&b, "\nQueue %s: %s waiting\n", queueKey, humanize.Comma(pending))
	fmt.Fprintf(&b, "Commits: %s pending | %s success | %s failure | %s error",
		humanize.Comma(int64(counts[domain.StatusPending])),
		humanize.Comma(int64(counts[domain.StatusSuccess])),
		humanize.Comma(int64(counts[domain.StatusFailure])),
		humanize.Comma(int64(counts[domain.StatusError])))
	return b.String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
