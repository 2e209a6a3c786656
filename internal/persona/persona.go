// Package persona loads the optional persona note that flavors the
// engine's prompts.
package persona

import (
	"errors"
	"log"
	"strings"

	"github.com/fernwehlabs/mnema/internal/note"
	"github.com/fernwehlabs/mnema/internal/vault"
)

const DefaultName = "Assistant"

type Persona struct {
	Name        string
	Description string
	Traits      []string
	Context     string
}

type frontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Traits      []string `yaml:"traits,omitempty"`
}

func Default() *Persona {
	return &Persona{Name: DefaultName}
}

// Load reads the persona note from the vault. A missing or unreadable
// note degrades to the neutral default.
func Load(store vault.Store, path string) *Persona {
	if !store.Exists(path) {
		return Default()
	}
	content, err := store.Read(path)
	if err != nil {
		log.Printf("[persona] warning: read %s: %v", path, err)
		return Default()
	}
	return Parse(content)
}

func Parse(content string) *Persona {
	var meta frontmatter
	body, err := note.DecodeFrontmatter(content, &meta)
	if err != nil {
		if !errors.Is(err, note.ErrMissingFrontmatter) {
			log.Printf("[persona] warning: unparsable persona frontmatter: %v", err)
		}
		body = content
	}

	p := &Persona{
		Name:        strings.TrimSpace(meta.Name),
		Description: strings.TrimSpace(meta.Description),
		Traits:      meta.Traits,
		Context:     strings.TrimSpace(body),
	}
	if p.Name == "" {
		p.Name = DefaultName
	}
	return p
}

// PromptContext renders the persona block used in consolidation
// prompts.
func (p *Persona) PromptContext() string {
	var b strings.Builder
	b.WriteString("You are " + p.Name)
	if p.Description != "" {
		b.WriteString(", " + p.Description)
	}
	b.WriteString(".\n")
	if len(p.Traits) > 0 {
		b.WriteString("Traits: " + strings.Join(p.Traits, ", ") + "\n")
	}
	if p.Context != "" {
		b.WriteString(p.Context + "\n")
	}
	return b.String()
}
