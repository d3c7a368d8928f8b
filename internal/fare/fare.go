// Package fare prices a trip from a vehicle tariff.
package fare

import (
	"math"
	"strconv"

	"github.com/example/ride-booking/internal/models"
)

// Estimate returns baseFare + distanceKm*pricePerKm, or 0 when either the
// vehicle type or a positive distance is missing.
func Estimate(vt *models.VehicleType, distanceKm float64) float64 {
	if vt == nil || !(distanceKm > 0) || math.IsInf(distanceKm, 0) {
		return 0
	}
	return vt.BaseFare + distanceKm*vt.PricePerKm
}

// Format renders a price with two decimals.
func Format(price float64) string {
	return strconv.FormatFloat(price, 'f', 2, 64)
}

// MinorUnits converts a price to cents for payment providers.
func MinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}
