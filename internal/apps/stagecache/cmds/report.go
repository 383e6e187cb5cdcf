package stagecache

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/0xa1bed0/stagecache/internal/build"
	"github.com/0xa1bed0/stagecache/internal/resolver"
	"github.com/0xa1bed0/stagecache/internal/ui"
)

// instructionStatus is what the report prints for one instruction. In a
// build, a BUILT instruction that never ran (its stage failed or stopped
// earlier) shows as SKIPPED.
func instructionStatus(in build.InstructionReport, planned bool) string {
	switch {
	case in.Err != nil:
		return "FAILED"
	case in.Verdict == resolver.Cached:
		return "CACHED"
	case planned || in.Artifact != "":
		return "BUILT"
	default:
		return "SKIPPED"
	}
}

func renderReport(w io.Writer, r *build.Report, planned bool) error {
	for _, err := range r.SourceErrors {
		fmt.Fprintf(w, "warning: %v\n", err)
	}

	stages := ui.NewTable(
		ui.Column{Header: "STAGE"},
		ui.Column{Header: "BASE", MaxWidth: 32, Truncate: ui.TruncateMiddle},
		ui.Column{Header: "STATUS", Style: ui.StatusStyle},
		ui.Column{Header: "CACHED", Align: ui.AlignRight},
		ui.Column{Header: "BUILT", Align: ui.AlignRight},
		ui.Column{Header: "FINAL"},
		ui.Column{Header: "PUBLISHED"},
	)
	steps := ui.NewTable(
		ui.Column{Header: "STAGE"},
		ui.Column{Header: "#", Align: ui.AlignRight},
		ui.Column{Header: "VERDICT", Style: ui.StatusStyle},
		ui.Column{Header: "FINGERPRINT"},
		ui.Column{Header: "INSTRUCTION", MaxWidth: 60},
		ui.Column{Header: "FROM"},
	)

	for _, s := range r.Stages {
		cached := s.Cached()
		stages.AddRow(
			s.Name,
			s.Base,
			s.Status.String(),
			strconv.Itoa(cached),
			strconv.Itoa(len(s.Instructions)-cached),
			s.Final.Short(),
			strings.Join(s.Published, ", "),
		)
		for _, in := range s.Instructions {
			steps.AddRow(
				s.Name,
				strconv.Itoa(in.Index),
				instructionStatus(in, planned),
				in.Fingerprint.Short(),
				in.Text,
				in.ProducedBy,
			)
		}
	}

	fmt.Fprintln(w, ui.Heading("Stages"))
	if err := stages.Render(w); err != nil {
		return err
	}
	if steps.Len() > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, ui.Heading("Instructions"))
		if err := steps.Render(w); err != nil {
			return err
		}
	}

	if planned && len(r.Known) > 0 {
		known := ui.NewTable(
			ui.Column{Header: "FINGERPRINT"},
			ui.Column{Header: "STAGE"},
			ui.Column{Header: "ARTIFACT", MaxWidth: 48, Truncate: ui.TruncateMiddle},
		)
		for _, rec := range r.Known {
			known.AddRow(rec.Fingerprint.Short(), rec.Stage, rec.Artifact)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, ui.Heading("Known layers"))
		if err := known.Render(w); err != nil {
			return err
		}
	}

	for _, s := range r.Stages {
		if s.Err != nil {
			fmt.Fprintf(w, "%s: %v\n", s.Name, s.Err)
		}
	}

	cached, built := r.Counts()
	verb := "built"
	if planned {
		verb = "to build"
	}
	fmt.Fprintf(w, "\n%s: %d cached, %d %s in %s\n", r.Target, cached, built, verb, r.Duration.Round(time.Millisecond))
	return nil
}
