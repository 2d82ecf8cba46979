// Package preset loads reusable sampling settings from YAML files.
package preset

import (
	"fmt"
	"os"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"gopkg.in/yaml.v3"
)

// Preset is a named set of sampling settings, for example:
//
//	rate:
//	  mode: interval
//	  value: 2
//	resolution: thumb
//	format: webp
//	resolutions:
//	  - {name: thumb, width: 320, height: 180}
type Preset struct {
	Rate        RateSpec         `yaml:"rate"`
	Resolution  string           `yaml:"resolution"`
	Format      string           `yaml:"format"`
	Resolutions []ResolutionSpec `yaml:"resolutions"`
}

type RateSpec struct {
	Mode  string  `yaml:"mode"`
	Value float64 `yaml:"value"`
}

type ResolutionSpec struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

func Load(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Preset, error) {
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preset: %w", err)
	}
	return &p, nil
}

func (p *Preset) Validate() error {
	if _, err := p.RateSelector(); err != nil {
		return err
	}
	if p.Format != "" {
		if _, ok := entity.ParseOutputFormat(p.Format); !ok {
			return fmt.Errorf("unsupported format %q", p.Format)
		}
	}

	seen := make(map[string]bool, len(p.Resolutions))
	for _, r := range p.Resolutions {
		if r.Name == "" || r.Width <= 0 || r.Height <= 0 {
			return fmt.Errorf("resolution %q needs a name and positive dimensions", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("resolution %q defined twice", r.Name)
		}
		seen[r.Name] = true
	}

	if _, _, err := entity.ParseResolution(p.Catalog(entity.StandardResolutions), p.Resolution); err != nil {
		return err
	}
	return nil
}

func (p *Preset) RateSelector() (entity.RateSelector, error) {
	mode, err := entity.ParseRateMode(p.Rate.Mode)
	if err != nil {
		return entity.RateSelector{}, err
	}
	switch mode {
	case entity.RateModeFPS, entity.RateModeInterval:
		if p.Rate.Value <= 0 {
			return entity.RateSelector{}, fmt.Errorf("rate value must be positive for mode %q", mode)
		}
		return entity.RateSelector{Mode: mode, Value: p.Rate.Value}, nil
	}
	return entity.NativeRate(), nil
}

// Catalog returns base extended with the preset's resolutions. A preset entry
// replaces a base entry of the same name, keeping its position.
func (p *Preset) Catalog(base []entity.Resolution) []entity.Resolution {
	out := make([]entity.Resolution, len(base), len(base)+len(p.Resolutions))
	copy(out, base)

	for _, spec := range p.Resolutions {
		r := entity.Resolution{Name: spec.Name, Width: spec.Width, Height: spec.Height}
		replaced := false
		for i := range out {
			if out[i].Name == r.Name {
				out[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, r)
		}
	}
	return out
}
