package persona

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mediafirewall/persona-voice/internal/model/exchange"
)

type catalogFile struct {
	Personas []catalogEntry `yaml:"personas"`
}

type catalogEntry struct {
	ID            string `yaml:"id"`
	DisplayName   string `yaml:"display_name"`
	Subtitle      string `yaml:"subtitle"`
	AvatarImage   string `yaml:"avatar_image"`
	Icon          string `yaml:"icon"`
	Expertise     string `yaml:"expertise"`
	AcceptsVideo  bool   `yaml:"accepts_video"`
	MaxVideoBytes int64  `yaml:"max_video_bytes"`
}

// LoadFile reads a YAML catalog that replaces the seeded personas.
//
//	personas:
//	  - id: fitness
//	    display_name: Suniel Shetty – Fitness Mentor
//	    expertise: fitness
//	    accepts_video: true
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates YAML catalog content.
func ParseCatalog(data []byte) ([]Persona, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse persona catalog: %w", err)
	}
	if len(file.Personas) == 0 {
		return nil, fmt.Errorf("persona catalog is empty")
	}

	seen := make(map[string]struct{}, len(file.Personas))
	items := make([]Persona, 0, len(file.Personas))
	for i, entry := range file.Personas {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("persona #%d: id is required", i+1)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("persona %q: duplicate id", id)
		}
		seen[id] = struct{}{}

		expertise, err := exchange.ParseExpertise(entry.Expertise)
		if err != nil {
			return nil, fmt.Errorf("persona %q: %w", id, err)
		}

		var capability Capability = TextOnly{}
		if entry.AcceptsVideo {
			limit := entry.MaxVideoBytes
			if limit <= 0 {
				limit = DefaultMaxVideoBytes
			}
			capability = VideoCapable{MaxBytes: limit}
		}

		name := strings.TrimSpace(entry.DisplayName)
		if name == "" {
			name = id
		}
		icon := entry.Icon
		if icon == "" {
			icon = string(expertise)
		}

		items = append(items, Persona{
			ID:          id,
			DisplayName: name,
			Subtitle:    entry.Subtitle,
			AvatarImage: entry.AvatarImage,
			Icon:        icon,
			Expertise:   expertise,
			Capability:  capability,
		})
	}
	return items, nil
}
