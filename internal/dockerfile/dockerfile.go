// Package dockerfile holds the parsed build description: ordered stages, each
// a base reference plus a list of instructions, and the loader that reads it.
//
// The textual Dockerfile parser lives outside this module. What arrives here
// is its output, serialized as YAML (see Load).
package dockerfile

import (
	"fmt"
	"strconv"
	"strings"
)

type Dockerfile []string

func (df Dockerfile) String() string {
	out := ""
	for _, line := range df {
		out += line + "\n"
	}
	return out
}

// Instruction is one build directive as literal text, plus the stages (or
// images) it copies from. Immutable once loaded.
type Instruction struct {
	Text string
	From []string
}

// Keyword returns the upper-cased directive, e.g. "RUN" or "COPY".
func (in Instruction) Keyword() string {
	fields := strings.Fields(in.Text)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// Stage is a named, ordered sequence of instructions on top of a base, which
// is either an external image or another stage.
type Stage struct {
	Name         string
	Base         string
	Instructions []Instruction
}

// ID returns the stage name, or its declaration index for unnamed stages.
func (s Stage) ID(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return strconv.Itoa(index)
}

// Dockerfile renders the stage back to Dockerfile lines.
func (s Stage) Dockerfile() Dockerfile {
	from := "FROM " + s.Base
	if s.Name != "" {
		from += " AS " + s.Name
	}

	lines := Dockerfile{from}
	for _, in := range s.Instructions {
		lines = append(lines, in.Text)
	}
	return lines
}

// File is a complete build description.
type File struct {
	Version int
	Stages  []Stage
}

// Dockerfile renders every stage, separated by blank lines.
func (f *File) Dockerfile() Dockerfile {
	lines := Dockerfile{}
	for i, stage := range f.Stages {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, stage.Dockerfile()...)
	}
	return lines
}

// extractFrom returns the --from= flag values of a COPY or ADD instruction.
// Flags are only recognised before the first positional argument.
func extractFrom(in Instruction) []string {
	fields := strings.Fields(in.Text)
	if len(fields) < 2 {
		return nil
	}

	switch in.Keyword() {
	case "COPY", "ADD":
	default:
		return nil
	}

	var from []string
	for _, f := range fields[1:] {
		if !strings.HasPrefix(f, "--") {
			break
		}
		if v, ok := strings.CutPrefix(f, "--from="); ok && v != "" {
			from = append(from, v)
		}
	}
	return from
}

func (s Stage) label(index int) string {
	if s.Name != "" {
		return fmt.Sprintf("stage %q", s.Name)
	}
	return fmt.Sprintf("stage[%d]", index)
}
