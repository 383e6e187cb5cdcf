package dockerfile

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// SupportedVersion is the only build description version understood.
const SupportedVersion = 1

// ErrParse is the sentinel behind every ParseError.
var ErrParse = errors.New("malformed build description")

// ParseError lists every problem found in a build description. A build never
// starts from a description that failed to parse.
type ParseError struct {
	Source   string
	Problems []string
}

func (e *ParseError) Error() string {
	src := e.Source
	if src == "" {
		src = "build description"
	}
	return fmt.Sprintf("%s: %v:\n  - %s", src, ErrParse, strings.Join(e.Problems, "\n  - "))
}

func (e *ParseError) Unwrap() error { return ErrParse }

var stageNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

type fileDoc struct {
	Version int        `yaml:"version"`
	Stages  []stageDoc `yaml:"stages"`
}

type stageDoc struct {
	Name         string           `yaml:"name"`
	From         string           `yaml:"from"`
	Instructions []instructionDoc `yaml:"instructions"`
}

// instructionDoc accepts either a plain string or a {text, from} mapping.
type instructionDoc struct {
	Text string   `yaml:"text"`
	From []string `yaml:"from"`

	explicitFrom bool
}

func (d *instructionDoc) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		d.Text = value.Value
		return nil
	}

	type plain instructionDoc
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*d = instructionDoc(p)
	d.explicitFrom = d.From != nil
	return nil
}

// Load reads and validates a build description file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading build description %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes and validates a YAML build description. source names the
// input in error messages.
func Parse(data []byte, source string) (*File, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Source: source, Problems: []string{err.Error()}}
	}

	f := &File{Version: doc.Version}
	for _, sd := range doc.Stages {
		stage := Stage{
			Name: strings.ToLower(strings.TrimSpace(sd.Name)),
			Base: strings.TrimSpace(sd.From),
		}
		for _, id := range sd.Instructions {
			// Text is kept byte for byte: it is part of the fingerprint.
			in := Instruction{Text: id.Text, From: id.From}
			if !id.explicitFrom {
				in.From = extractFrom(in)
			}
			in.From = normalizeRefs(in.From)
			stage.Instructions = append(stage.Instructions, in)
		}
		f.Stages = append(f.Stages, stage)
	}

	if problems := Validate(f); len(problems) > 0 {
		return nil, &ParseError{Source: source, Problems: problems}
	}
	return f, nil
}

// Validate checks a File for structural problems that do not need the stage
// graph: versions, names and empty fields. Reference resolution happens in
// the graph builder.
func Validate(f *File) []string {
	var problems []string

	if f.Version != SupportedVersion {
		problems = append(problems, fmt.Sprintf("unsupported version %d, only version %d is supported", f.Version, SupportedVersion))
	}
	if len(f.Stages) == 0 {
		problems = append(problems, "at least one stage is required")
	}

	seen := make(map[string]int)
	for i, s := range f.Stages {
		label := s.label(i)

		if s.Name != "" {
			if !stageNamePattern.MatchString(s.Name) {
				problems = append(problems, fmt.Sprintf("%s: invalid name, must match %s", label, stageNamePattern))
			}
			if prev, dup := seen[s.Name]; dup {
				problems = append(problems, fmt.Sprintf("%s: duplicate name, already used by stage[%d]", label, prev))
			} else {
				seen[s.Name] = i
			}
		}

		if s.Base == "" {
			problems = append(problems, fmt.Sprintf("%s: 'from' is required", label))
		}

		for j, in := range s.Instructions {
			if strings.TrimSpace(in.Text) == "" {
				problems = append(problems, fmt.Sprintf("%s: instruction[%d] is empty", label, j))
			}
			for _, ref := range in.From {
				if ref == "" {
					problems = append(problems, fmt.Sprintf("%s: instruction[%d] has an empty --from reference", label, j))
				}
			}
		}
	}

	return problems
}

func normalizeRefs(refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = strings.TrimSpace(r)
	}
	return out
}
