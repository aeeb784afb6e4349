/*
calculator.go - Emission factor calculation

PURPOSE:
  Converts a normalized quantity (USD spend, GB transferred, km traveled,
  kWh consumed) into kg CO2e. The Calculator interface is the seam to the
  external Emission Factor Calculator collaborator; FactorCalculator is
  the built-in implementation following the Cloud Carbon Footprint style
  of methodology: activity -> energy (kWh) -> PUE overhead -> grid
  intensity -> kg CO2e.

FACTORS:
  Electricity-based sources take the resolved grid intensity (gCO2/kWh)
  as an input. Combustion-based sources (travel, fleet) use fixed per-km
  factors and ignore intensity.

SEE ALSO:
  - gateway.go / engine.go: Callers
  - grid/: Where intensity values come from
*/
package emissions

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/opti100/carbonledger/grid"
)

// IntensityResolver is the seam to the grid package. grid.Resolver
// satisfies it; tests substitute stubs with call counting.
type IntensityResolver interface {
	Resolve(ctx context.Context, country string) (grid.Record, error)
}

// Calculator converts one source entry's quantity into kg CO2e.
// Electricity-based sources receive a non-nil intensity record.
type Calculator interface {
	Calculate(ctx context.Context, source SourceType, entryType string, quantity decimal.Decimal, unit string, intensity *grid.Record) (decimal.Decimal, error)
}

// =============================================================================
// CONVERSION FACTORS
// =============================================================================

// Energy and emission factors. Cloud/CDN/workforce factors follow the
// Cloud Carbon Footprint methodology; travel factors are DEFRA-style
// per-passenger-km averages.
const (
	// KWhPerCloudUSD estimates datacenter energy per dollar of cloud spend.
	KWhPerCloudUSD = 0.156

	// KgPerGBTransferred is kg CO2e per GB of CDN transfer, a fixed
	// network factor independent of the customer's grid.
	KgPerGBTransferred = 0.0385

	// KWhPerOfficeDay is electricity per employee office day.
	KWhPerOfficeDay = 15.0

	// KWhPerThousandPageviews is electricity per 1000 tracked page/app events.
	KWhPerThousandPageviews = 0.36

	// DatacenterPUE is the power usage effectiveness overhead applied to
	// datacenter workloads (cloud, on-prem).
	DatacenterPUE = 1.135

	// KgPerKmFlight, KgPerKmRail, KgPerKmRoad are per-passenger-km factors.
	KgPerKmFlight = 0.195
	KgPerKmRail   = 0.035
	KgPerKmRoad   = 0.171

	// KgPerLiterFuel is kg CO2e per liter of gasoline burned by fleet
	// vehicles. Scope 1: direct combustion.
	KgPerLiterFuel = 2.31
)

// Units accepted by the factor calculator.
const (
	UnitUSD    = "usd"
	UnitGB     = "gb"
	UnitKWh    = "kwh"
	UnitKm     = "km"
	UnitLiters = "liters"
	UnitEvents = "events"
	UnitDays   = "person_days"
)

// ExpectedUnit returns the unit a source's entries must carry.
func ExpectedUnit(s SourceType) string {
	switch s {
	case SourceCloud:
		return UnitUSD
	case SourceCDN:
		return UnitGB
	case SourceOnPrem:
		return UnitKWh
	case SourceWorkforce:
		return UnitDays
	case SourceTravel:
		return UnitKm
	case SourceFleet:
		return UnitLiters
	case SourceWebsite:
		return UnitEvents
	default:
		return ""
	}
}

// =============================================================================
// FACTOR CALCULATOR - Built-in implementation
// =============================================================================

// FactorCalculator converts quantities using the static factor table above.
type FactorCalculator struct{}

func NewFactorCalculator() *FactorCalculator {
	return &FactorCalculator{}
}

// Calculate converts quantity to kg CO2e. Deterministic: the same inputs
// always produce the same decimal result.
func (c *FactorCalculator) Calculate(ctx context.Context, source SourceType, entryType string, quantity decimal.Decimal, unit string, intensity *grid.Record) (decimal.Decimal, error) {
	if quantity.IsNegative() {
		return decimal.Zero, &ValidationError{Field: "quantity", Message: "must be non-negative"}
	}
	if expected := ExpectedUnit(source); unit != expected {
		return decimal.Zero, &ValidationError{Field: "unit", Message: "expected " + expected + ", got " + unit}
	}

	switch source {
	case SourceCloud:
		return electricityKg(quantity.Mul(decimal.NewFromFloat(KWhPerCloudUSD)), DatacenterPUE, intensity), nil
	case SourceCDN:
		return quantity.Mul(decimal.NewFromFloat(KgPerGBTransferred)), nil
	case SourceOnPrem:
		return electricityKg(quantity, DatacenterPUE, intensity), nil
	case SourceWorkforce:
		return electricityKg(quantity.Mul(decimal.NewFromFloat(KWhPerOfficeDay)), 1.0, intensity), nil
	case SourceWebsite:
		kwh := quantity.Div(thousand).Mul(decimal.NewFromFloat(KWhPerThousandPageviews))
		return electricityKg(kwh, 1.0, intensity), nil
	case SourceTravel:
		return quantity.Mul(decimal.NewFromFloat(travelFactor(entryType))), nil
	case SourceFleet:
		return quantity.Mul(decimal.NewFromFloat(KgPerLiterFuel)), nil
	default:
		return decimal.Zero, &ValidationError{Field: "source", Message: "unknown source type " + string(source)}
	}
}

// electricityKg applies kWh -> kg CO2e: kWh x PUE x intensity(g/kWh) / 1000.
// A missing intensity record means the caller skipped resolution entirely;
// the shared default keeps the result usable rather than zero.
func electricityKg(kwh decimal.Decimal, pue float64, intensity *grid.Record) decimal.Decimal {
	grams := grid.DefaultIntensityGramsPerKWh
	if intensity != nil {
		grams = intensity.Average
	}
	return kwh.
		Mul(decimal.NewFromFloat(pue)).
		Mul(decimal.NewFromFloat(grams)).
		Div(thousand)
}

// TravelMode labels a trip's transport mode.
const (
	TravelModeFlight = "flight"
	TravelModeRail   = "rail"
	TravelModeRoad   = "road"
)

func travelFactor(mode string) float64 {
	switch mode {
	case TravelModeFlight:
		return KgPerKmFlight
	case TravelModeRail:
		return KgPerKmRail
	case TravelModeRoad:
		return KgPerKmRoad
	default:
		// trip_batch entries carry per-mode rows; an aggregate quantity
		// without a mode uses the road factor as the conservative middle.
		return KgPerKmRoad
	}
}

// ValidTravelMode reports whether mode is a known transport mode.
func ValidTravelMode(mode string) bool {
	return mode == TravelModeFlight || mode == TravelModeRail || mode == TravelModeRoad
}
