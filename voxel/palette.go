package voxel

import (
	"fmt"
	"strings"
)

// PlaceholderState is the single state that every legacy numeric placeholder
// collapses onto.
const PlaceholderState BlockState = `universal_minecraft:wool[color="magenta"]`

const legacyNumericMarker = "minecraft:numerical"

// IsLegacyPlaceholder reports whether state is a numeric block id that could
// not be mapped to a named state.
func IsLegacyPlaceholder(state BlockState) bool {
	return strings.Contains(string(state), legacyNumericMarker)
}

// Translator maps chunk palettes onto registry ids.
type Translator struct {
	registry *Registry
}

func NewTranslator(registry *Registry) *Translator {
	return &Translator{registry: registry}
}

// Table builds the local-to-global lookup for one chunk palette. Entries are
// registered in palette order.
func (t *Translator) Table(palette Palette) ([]GlobalID, error) {
	table := make([]GlobalID, len(palette))
	for i, state := range palette {
		if IsLegacyPlaceholder(state) {
			state = PlaceholderState
		}
		id, err := t.registry.GetOrCreateID(state)
		if err != nil {
			return nil, fmt.Errorf("translating palette entry %d (%s): %w", i, state, err)
		}
		table[i] = id
	}
	return table, nil
}

// Translate gathers a section's local indices through table, writing one
// global id per block into dst in the section's own index order.
func Translate(table []GlobalID, section *Section, dst *[SectionVolume]GlobalID) {
	for i, local := range section.Blocks {
		dst[i] = table[local]
	}
}
