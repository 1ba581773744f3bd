package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed anne_frank.yaml
var defaultPack []byte

// Pack is the persona definition used to render the generation prompt.
type Pack struct {
	Name      string `yaml:"name"`
	Born      int    `yaml:"born"`
	Died      int    `yaml:"died"`
	NoEntries string `yaml:"no_entries"`
	Prompt    string `yaml:"prompt"`

	tmpl *template.Template
}

type promptData struct {
	Name     string
	Born     int
	Died     int
	Entries  string
	Question string
}

// Load reads a persona pack from path, or the embedded default when path is empty.
func Load(path string) (*Pack, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultPack)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(raw)
}

func Default() *Pack {
	pack, err := Parse(defaultPack)
	if err != nil {
		panic(fmt.Sprintf("embedded persona pack: %v", err))
	}
	return pack
}

func Parse(raw []byte) (*Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(raw, &pack); err != nil {
		return nil, fmt.Errorf("decode persona pack: %w", err)
	}
	if strings.TrimSpace(pack.Name) == "" {
		return nil, errors.New("persona pack: name is required")
	}
	if strings.TrimSpace(pack.Prompt) == "" {
		return nil, errors.New("persona pack: prompt is required")
	}
	if pack.Died != 0 && pack.Born > pack.Died {
		return nil, fmt.Errorf("persona pack: born %d after died %d", pack.Born, pack.Died)
	}
	if strings.TrimSpace(pack.NoEntries) == "" {
		pack.NoEntries = "No diary entries were found for this question."
	}

	tmpl, err := template.New(pack.Name).Option("missingkey=error").Parse(pack.Prompt)
	if err != nil {
		return nil, fmt.Errorf("parse persona prompt: %w", err)
	}
	pack.tmpl = tmpl
	return &pack, nil
}

// Render fills the prompt with excerpts and the question.
func (p *Pack) Render(question, excerpts string) (string, error) {
	if strings.TrimSpace(excerpts) == "" {
		excerpts = p.NoEntries
	}
	var b strings.Builder
	err := p.tmpl.Execute(&b, promptData{
		Name:     p.Name,
		Born:     p.Born,
		Died:     p.Died,
		Entries:  excerpts,
		Question: question,
	})
	if err != nil {
		return "", fmt.Errorf("render persona prompt: %w", err)
	}
	return b.String(), nil
}
