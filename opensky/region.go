package opensky

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// DefaultSpan is the latitude and longitude span, in degrees, used by
// [RegionAround].
const DefaultSpan = 5.0

// Region is a rectangular area of interest described by its center and its
// full latitude and longitude spans in degrees. Region is a comparable value.
type Region struct {
	Latitude       float64 `json:"latitude" yaml:"latitude"`
	Longitude      float64 `json:"longitude" yaml:"longitude"`
	LatitudeDelta  float64 `json:"latitude_delta" yaml:"latitude_delta"`
	LongitudeDelta float64 `json:"longitude_delta" yaml:"longitude_delta"`
}

// NewRegion returns a validated [Region].
func NewRegion(lat, lon, latDelta, lonDelta float64) (Region, error) {
	r := Region{Latitude: lat, Longitude: lon, LatitudeDelta: latDelta, LongitudeDelta: lonDelta}
	if err := r.Validate(); err != nil {
		return Region{}, err
	}
	return r, nil
}

// RegionAround returns a region of [DefaultSpan] degrees centered on a point.
func RegionAround(lat, lon float64) Region {
	return Region{Latitude: lat, Longitude: lon, LatitudeDelta: DefaultSpan, LongitudeDelta: DefaultSpan}
}

// Validate checks that the center is on the globe and the spans are positive.
func (r Region) Validate() error {
	for _, f := range []float64{r.Latitude, r.Longitude, r.LatitudeDelta, r.LongitudeDelta} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("region: non-finite coordinate in %s", r)
		}
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		return fmt.Errorf("region: latitude must be between -90 and 90, got %g", r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("region: longitude must be between -180 and 180, got %g", r.Longitude)
	}
	if r.LatitudeDelta <= 0 || r.LongitudeDelta <= 0 {
		return fmt.Errorf("region: spans must be positive, got %g x %g", r.LatitudeDelta, r.LongitudeDelta)
	}
	return nil
}

// IsZero reports whether r is the zero Region.
func (r Region) IsZero() bool {
	return r == Region{}
}

// Bounds returns the bounding box center ± delta/2, clamped to valid
// coordinates. Min is the south-west corner and Max the north-east corner,
// both as (lon, lat).
func (r Region) Bounds() orb.Bound {
	halfLat := r.LatitudeDelta / 2
	halfLon := r.LongitudeDelta / 2
	return orb.Bound{
		Min: orb.Point{clamp(r.Longitude-halfLon, -180, 180), clamp(r.Latitude-halfLat, -90, 90)},
		Max: orb.Point{clamp(r.Longitude+halfLon, -180, 180), clamp(r.Latitude+halfLat, -90, 90)},
	}
}

// String renders the region for logs.
func (r Region) String() string {
	return fmt.Sprintf("(%.4f,%.4f ±%.4f/%.4f)", r.Latitude, r.Longitude, r.LatitudeDelta/2, r.LongitudeDelta/2)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
