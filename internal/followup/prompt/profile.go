package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Capability struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Profile describes the selling organisation. All product wording in prompts comes from here.
type Profile struct {
	CompanyName    string       `yaml:"company_name"`
	ProductName    string       `yaml:"product_name"`
	Capabilities   []Capability `yaml:"capabilities"`
	ToneGuidelines []string     `yaml:"tone_guidelines"`
	SearchTopics   []string     `yaml:"search_topics"`
	MaxEmailWords  int          `yaml:"max_email_words"`
}

func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt profile: %w", err)
	}
	return ParseProfile(data)
}

func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompt profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.CompanyName == "" {
		p.CompanyName = p.ProductName
	}
	if p.MaxEmailWords <= 0 {
		p.MaxEmailWords = 200
	}
	return &p, nil
}

func (p *Profile) Validate() error {
	if strings.TrimSpace(p.ProductName) == "" {
		return fmt.Errorf("prompt profile: product_name is required")
	}
	for i, c := range p.Capabilities {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("prompt profile: capabilities[%d].name is required", i)
		}
	}
	return nil
}
