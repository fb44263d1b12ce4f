package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/qphi/dragen-report/pkg/scanner"
)

// Stats contains the headline numbers of a report.
type Stats struct {
	Rows           int
	Samples        int
	FailingSamples int
	NoPassFile     int
	Instances      map[string]int
}

// ComputeStats derives summary counts from the report rows. Instances maps
// every not-ok instance label to the number of distinct samples failing in
// it.
func (r *Report) ComputeStats() *Stats {
	samples := make(map[string]struct{})
	failing := make(map[string]struct{})
	noPass := make(map[string]struct{})
	perInstance := make(map[string]map[string]struct{})

	for _, row := range r.Rows {
		samples[row.SampleID] = struct{}{}

		if len(row.Messages) > 0 {
			failing[row.SampleID] = struct{}{}
		}

		for _, p := range row.Pass {
			if p == scanner.NoPassFile {
				noPass[row.SampleID] = struct{}{}
			}
		}

		for _, inst := range row.NotOK {
			if perInstance[inst] == nil {
				perInstance[inst] = make(map[string]struct{})
			}

			perInstance[inst][row.SampleID] = struct{}{}
		}
	}

	instances := make(map[string]int, len(perInstance))
	for inst, s := range perInstance {
		instances[inst] = len(s)
	}

	return &Stats{
		Rows:           len(r.Rows),
		Samples:        len(samples),
		FailingSamples: len(failing),
		NoPassFile:     len(noPass),
		Instances:      instances,
	}
}

// Markdown renders a markdown summary of the report. The output is capped
// at maxChars characters when maxChars is positive.
func Markdown(r *Report, title string, maxChars int) string {
	stats := r.ComputeStats()

	var sb strings.Builder

	sb.Grow(4096)

	fmt.Fprintf(&sb, "# Validator Report: %s\n\n", title)

	writeOverview(&sb, stats)
	writeInstances(&sb, stats.Instances)

	// Failing samples go last, they are truncated if needed.
	writeFailingSamples(&sb, r.Rows, maxChars)

	return sb.String()
}

func writeOverview(sb *strings.Builder, s *Stats) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Samples | Failing | No Pass File | Instances | Rows |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(sb, "| %d | %d | %d | %d | %d |\n\n",
		s.Samples, s.FailingSamples, s.NoPassFile, len(s.Instances), s.Rows)
}

func writeInstances(sb *strings.Builder, instances map[string]int) {
	if len(instances) == 0 {
		return
	}

	names := make([]string, 0, len(instances))
	for name := range instances {
		names = append(names, name)
	}

	sort.Strings(names)

	sb.WriteString("## Not OK Instances\n\n")
	sb.WriteString("| Instance | Samples |\n")
	sb.WriteString("|---|---|\n")

	for _, name := range names {
		fmt.Fprintf(sb, "| %s | %d |\n", name, instances[name])
	}

	sb.WriteByte('\n')
}

func writeFailingSamples(sb *strings.Builder, rows []Row, maxChars int) {
	failing := make([]Row, 0, len(rows))
	for _, row := range rows {
		if len(row.Messages) > 0 {
			failing = append(failing, row)
		}
	}

	if len(failing) == 0 {
		return
	}

	sb.WriteString("## Failing Samples\n\n")
	sb.WriteString("| Sample | Dropbox UUID | Instances | Messages |\n")
	sb.WriteString("|---|---|---|---|\n")

	// Reserve space for the truncation message.
	const reserveChars = 100

	for i, row := range failing {
		line := fmt.Sprintf("| %s | `%s` | %s | %s |\n",
			row.SampleID,
			row.DropboxUUID,
			strings.Join(row.NotOK, ", "),
			escapeCell(strings.Join(row.Messages, "; ")),
		)

		if maxChars > 0 && sb.Len()+len(line)+reserveChars > maxChars {
			fmt.Fprintf(sb,
				"\n*%d more failing sample(s) not shown "+
					"(output truncated at %d chars)*\n",
				len(failing)-i, maxChars)

			return
		}

		sb.WriteString(line)
	}
}

// escapeCell keeps free-text messages from breaking the table layout.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\r\n", " ")

	return strings.ReplaceAll(s, "\n", " ")
}
