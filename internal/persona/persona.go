// Package persona supplies the system directive and generation settings
// given to every new conversation.
package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/issacpacheco/chat-stream-gemini/internal/chat"
	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

// DefaultTemperature is used when neither the persona nor the config sets one.
const DefaultTemperature = 0.2

const defaultDirective = "Eres el Profesor Oak, un venerable y sabio maestro Pokémon. " +
	"Tu tono es siempre entusiasta, inspirador y de un experto con profundo conocimiento. " +
	"Tu tarea es educar al usuario sobre los Pokémon, sus características y la historia del mundo Pokémon. " +
	"Cuando el usuario pregunte por un Pokémon, proporciona una ficha detallada que debe incluir: " +
	"1. Nombre y Número de la Pokédex. " +
	"2. Tipo(s) y Especie. " +
	"3. Datos sobre su primera aparición (juego o región) y curiosidades. " +
	"4. Habilidades clave, estadísticas básicas y la cadena evolutiva. " +
	"5. Una sección de **Debilidades y Fortalezas** clara para el combate. " +
	"Mantén el contexto de la conversación. ¡Usa siempre emojis para añadir emoción! ⚡️"

// ErrEmptyDirective is returned when a persona file has no directive text.
var ErrEmptyDirective = errors.New("persona has an empty directive")

// Persona is a named system directive with its sampling settings.
type Persona struct {
	Name        string   `yaml:"name"`
	Directive   string   `yaml:"directive"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	Stop        []string `yaml:"stop,omitempty"`
}

// Default returns the built-in Pokémon professor persona.
func Default() *Persona {
	t := DefaultTemperature
	return &Persona{
		Name:        "professor-oak",
		Directive:   defaultDirective,
		Temperature: &t,
		Stop:        []string{},
	}
}

// Load reads a persona from path. YAML files (.yaml, .yml) are decoded
// as a Persona; anything else is taken verbatim as the directive.
func Load(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona: %w", err)
	}

	var p Persona
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse persona %s: %w", path, err)
		}
	default:
		p.Directive = string(data)
	}

	p.Directive = strings.TrimSpace(p.Directive)
	if p.Directive == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyDirective)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &p, nil
}

// SessionConfig converts the persona into the settings fixed at session creation.
func (p *Persona) SessionConfig() chat.SessionConfig {
	cfg := chat.SessionConfig{
		SystemDirective: p.Directive,
		Temperature:     DefaultTemperature,
		StopSequences:   []string{},
	}
	if p.Temperature != nil {
		cfg.Temperature = float32(*p.Temperature)
	}
	if p.Stop != nil {
		cfg.StopSequences = append([]string(nil), p.Stop...)
	}
	return cfg
}

// Source holds the persona handed to newly created sessions. It is safe
// for concurrent use; replacing it never affects existing sessions.
type Source struct {
	current  atomic.Pointer[Persona]
	path     string
	fallback types.PersonaConfig
}

// NewSource returns a Source serving p.
func NewSource(p *Persona) *Source {
	s := &Source{}
	s.current.Store(p)
	return s
}

// FromConfig builds a Source from configuration. A persona file takes
// precedence over an inline directive; with neither, Default is used.
// Temperature and stop words from the config fill fields the persona
// leaves unset.
func FromConfig(cfg types.PersonaConfig) (*Source, error) {
	s := &Source{path: cfg.File, fallback: cfg}
	p, err := s.resolve()
	if err != nil {
		return nil, err
	}
	s.current.Store(p)
	return s, nil
}

func (s *Source) resolve() (*Persona, error) {
	var p *Persona
	switch {
	case s.path != "":
		loaded, err := Load(s.path)
		if err != nil {
			return nil, err
		}
		p = loaded
	case strings.TrimSpace(s.fallback.Directive) != "":
		p = &Persona{Name: "custom", Directive: strings.TrimSpace(s.fallback.Directive)}
	default:
		p = Default()
	}

	if p.Temperature == nil && s.fallback.Temperature != nil {
		t := *s.fallback.Temperature
		p.Temperature = &t
	}
	if p.Stop == nil && s.fallback.Stop != nil {
		p.Stop = append([]string(nil), s.fallback.Stop...)
	}
	return p, nil
}

// Current returns the persona new sessions receive.
func (s *Source) Current() *Persona {
	return s.current.Load()
}

// Path returns the persona file backing the source, if any.
func (s *Source) Path() string {
	return s.path
}

// Reload re-reads the persona file. On error the previous persona stays.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	p, err := s.resolve()
	if err != nil {
		return err
	}
	s.current.Store(p)
	return nil
}

// SessionConfig returns the settings for a session created now.
func (s *Source) SessionConfig() chat.SessionConfig {
	return s.Current().SessionConfig()
}
