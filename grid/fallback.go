/*
fallback.go - Static intensity table and ISO3 country mapping

PURPOSE:
  Last tier of the resolution chain. The table ships embedded as YAML so
  deployments can override it with a newer vintage via a file path flag
  without rebuilding.

DATA:
  Values are yearly-average gCO2/kWh per country, following the grid
  factor tables published by Ember / IEA. Unlisted countries resolve to
  DefaultIntensityGramsPerKWh.
*/
package grid

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed fallback_intensity.yaml
var embeddedFallback []byte

// FallbackTable maps lowercased country names to static intensity values.
type FallbackTable struct {
	intensities map[string]float64
}

// NewFallbackTable loads the embedded static table.
func NewFallbackTable() (*FallbackTable, error) {
	return parseFallback(embeddedFallback)
}

// LoadFallbackTable loads a table from a YAML file, for deployments that
// carry a newer data vintage than the embedded one.
func LoadFallbackTable(path string) (*FallbackTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fallback table: %w", err)
	}
	return parseFallback(raw)
}

func parseFallback(raw []byte) (*FallbackTable, error) {
	var doc struct {
		Intensities map[string]float64 `yaml:"intensities"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse fallback table: %w", err)
	}
	normalized := make(map[string]float64, len(doc.Intensities))
	for country, value := range doc.Intensities {
		normalized[strings.ToLower(country)] = value
	}
	return &FallbackTable{intensities: normalized}, nil
}

// Intensity returns the static value for a country, or the shared default
// for unlisted countries.
func (t *FallbackTable) Intensity(country string) float64 {
	if v, ok := t.intensities[strings.ToLower(country)]; ok {
		return v
	}
	return DefaultIntensityGramsPerKWh
}

// =============================================================================
// ISO3 MAPPING - Countries the hourly-CO2 API can be queried for
// =============================================================================

// iso3Codes maps lowercased country names to the ISO3 codes the external
// API expects. A country missing here skips the API entirely.
var iso3Codes = map[string]string{
	"united states":  "USA",
	"united kingdom": "GBR",
	"germany":        "DEU",
	"france":         "FRA",
	"spain":          "ESP",
	"italy":          "ITA",
	"netherlands":    "NLD",
	"belgium":        "BEL",
	"sweden":         "SWE",
	"norway":         "NOR",
	"denmark":        "DNK",
	"finland":        "FIN",
	"poland":         "POL",
	"ireland":        "IRL",
	"portugal":       "PRT",
	"austria":        "AUT",
	"switzerland":    "CHE",
	"canada":         "CAN",
	"australia":      "AUS",
	"india":          "IND",
	"japan":          "JPN",
	"south korea":    "KOR",
	"singapore":      "SGP",
	"brazil":         "BRA",
	"south africa":   "ZAF",
}

// ISO3 returns the API code for a country. ok is false for unmapped
// countries, which must resolve via the fallback table.
func ISO3(country string) (string, bool) {
	code, ok := iso3Codes[strings.ToLower(country)]
	return code, ok
}
