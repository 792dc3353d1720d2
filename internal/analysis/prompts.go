package analysis

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed prompts.toml
var promptFS embed.FS

const promptsFile = "prompts.toml"

// Prompts are the instruction templates sent to the vision model.
type Prompts struct {
	System        string `toml:"system"`
	Opening       string `toml:"opening"`
	Continuation  string `toml:"continuation"`
	Consolidation string `toml:"consolidation"`
}

// LoadPrompts reads dir/prompts.toml when present and falls back to the
// embedded defaults. Templates missing from an override keep their default.
func LoadPrompts(dir string) (*Prompts, error) {
	data, err := promptFS.ReadFile(promptsFile)
	if err != nil {
		return nil, fmt.Errorf("reading embedded prompts: %w", err)
	}
	var p Prompts
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing embedded prompts: %w", err)
	}

	if dir != "" {
		override, err := os.ReadFile(filepath.Join(dir, promptsFile))
		switch {
		case err == nil:
			if err := toml.Unmarshal(override, &p); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", filepath.Join(dir, promptsFile), err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading prompt override: %w", err)
		}
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Prompts) validate() error {
	for name, v := range map[string]string{
		"opening":       p.Opening,
		"continuation":  p.Continuation,
		"consolidation": p.Consolidation,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("prompt %q is empty", name)
		}
	}
	return nil
}

// batchPlacement locates one batch inside the full frame sequence.
type batchPlacement struct {
	Index   int // zero-based
	Batches int
	First   int // one-based frame position
	Last    int
	Total   int
	Phases  []string
}

// BatchText renders the opening template for the first batch and the
// continuation template for every later one.
func (p *Prompts) BatchText(b batchPlacement) string {
	tmpl := p.Continuation
	if b.Index == 0 {
		tmpl = p.Opening
	}
	return strings.NewReplacer(
		"{first}", strconv.Itoa(b.First),
		"{last}", strconv.Itoa(b.Last),
		"{total}", strconv.Itoa(b.Total),
		"{batch}", strconv.Itoa(b.Index+1),
		"{batches}", strconv.Itoa(b.Batches),
		"{phases}", strings.Join(b.Phases, ", "),
	).Replace(strings.TrimSpace(tmpl))
}

// ConsolidationText renders the synthesis instruction around the ordered segments.
func (p *Prompts) ConsolidationText(segments []string) string {
	var sb strings.Builder
	for i, s := range segments {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Note %d:\n%s", i+1, strings.TrimSpace(s))
	}
	return strings.NewReplacer(
		"{count}", strconv.Itoa(len(segments)),
		"{segments}", sb.String(),
	).Replace(strings.TrimSpace(p.Consolidation))
}

// SystemText returns the system instruction.
func (p *Prompts) SystemText() string {
	return strings.TrimSpace(p.System)
}
