package shipping

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// WeightDecimals is the precision used for parcel weights (kg).
	WeightDecimals = 3
	// CurrencyDecimals is the precision used for prices and declared values.
	CurrencyDecimals = 2
	// MaxParcelCount caps the packages of one entry and of a whole list.
	MaxParcelCount = 1000
)

// Parcel is one entry of a shipment's parcel list.
// Count multiplies the entry into identical physical packages.
type Parcel struct {
	// Weight in kilograms
	Weight decimal.Decimal `json:"weight"`
	// Length in centimeters
	Length decimal.Decimal `json:"length"`
	// Width in centimeters
	Width decimal.Decimal `json:"width"`
	// Height in centimeters
	Height decimal.Decimal `json:"height"`
	// Count is the number of identical packages described by this entry
	Count int `json:"count"`
}

// Validate checks the parcel's measurements.
func (p Parcel) Validate() error {
	if !p.Weight.IsPositive() {
		return fmt.Errorf("%w: weight must be greater than zero", ErrInvalidParcel)
	}
	if p.Length.IsNegative() || p.Width.IsNegative() || p.Height.IsNegative() {
		return fmt.Errorf("%w: dimensions cannot be negative", ErrInvalidParcel)
	}
	if p.Count < 1 {
		return fmt.Errorf("%w: count must be at least 1", ErrInvalidParcel)
	}
	if p.Count > MaxParcelCount {
		return fmt.Errorf("%w: count cannot exceed %d", ErrInvalidParcel, MaxParcelCount)
	}
	return nil
}

// RoundedWeight returns the weight rounded to WeightDecimals.
func (p Parcel) RoundedWeight() decimal.Decimal {
	return RoundWeight(p.Weight)
}

// ParseParcels decodes the ERP's serialized parcel list.
// A missing or zero count is treated as one package.
func ParseParcels(raw string) ([]Parcel, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidParcelList)
	}

	var parcels []Parcel
	if err := json.Unmarshal([]byte(raw), &parcels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParcelList, err)
	}
	if len(parcels) == 0 {
		return nil, fmt.Errorf("%w: no parcels", ErrInvalidParcelList)
	}

	for i := range parcels {
		if parcels[i].Count == 0 {
			parcels[i].Count = 1
		}
	}
	if err := ValidateParcels(parcels); err != nil {
		return nil, err
	}
	return parcels, nil
}

// ValidateParcels validates every parcel in the list.
func ValidateParcels(parcels []Parcel) error {
	if len(parcels) == 0 {
		return fmt.Errorf("%w: no parcels", ErrInvalidParcelList)
	}
	total := 0
	for i, p := range parcels {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("parcel %d: %w", i+1, err)
		}
		total += p.Count
		if total > MaxParcelCount {
			return fmt.Errorf("%w: more than %d packages", ErrInvalidParcelList, MaxParcelCount)
		}
	}
	return nil
}

// TotalParcelCount returns the number of physical packages in the list.
// Entries with a non-positive count are skipped and the sum saturates at
// math.MaxInt.
func TotalParcelCount(parcels []Parcel) int {
	total := 0
	for _, p := range parcels {
		if p.Count <= 0 {
			continue
		}
		if p.Count > math.MaxInt-total {
			return math.MaxInt
		}
		total += p.Count
	}
	return total
}

// ExpandParcels repeats every entry Count times, returning one unit per
// physical package, in list order.
// The list must have passed ValidateParcels.
func ExpandParcels(parcels []Parcel) []Parcel {
	units := make([]Parcel, 0, min(TotalParcelCount(parcels), MaxParcelCount))
	for _, p := range parcels {
		unit := p
		unit.Count = 1
		for i := 0; i < p.Count; i++ {
			units = append(units, unit)
		}
	}
	return units
}

// ParcelBounds holds the largest weight and dimensions found in a parcel list.
type ParcelBounds struct {
	Weight decimal.Decimal
	Length decimal.Decimal
	Width  decimal.Decimal
	Height decimal.Decimal
}

// Bounds computes the maximum weight, length, width and height across parcels.
// Each maximum is taken independently.
func Bounds(parcels []Parcel) ParcelBounds {
	var b ParcelBounds
	for _, p := range parcels {
		b.Weight = decimal.Max(b.Weight, p.Weight)
		b.Length = decimal.Max(b.Length, p.Length)
		b.Width = decimal.Max(b.Width, p.Width)
		b.Height = decimal.Max(b.Height, p.Height)
	}
	return b
}

// WeightInRange reports whether at least one parcel weighs w with
// min <= w < max.
func WeightInRange(parcels []Parcel, min, max decimal.Decimal) bool {
	for _, p := range parcels {
		if p.Weight.GreaterThanOrEqual(min) && p.Weight.LessThan(max) {
			return true
		}
	}
	return false
}

// TotalPrice multiplies a per-parcel price by the number of packages and
// rounds to CurrencyDecimals.
func TotalPrice(unitPrice decimal.Decimal, parcels []Parcel) decimal.Decimal {
	count := decimal.NewFromInt(int64(TotalParcelCount(parcels)))
	return RoundMoney(unitPrice.Mul(count))
}

// RoundWeight rounds a weight to WeightDecimals.
func RoundWeight(d decimal.Decimal) decimal.Decimal {
	return d.Round(WeightDecimals)
}

// RoundMoney rounds an amount to CurrencyDecimals.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyDecimals)
}
