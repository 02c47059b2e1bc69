package opensky

import (
	"strings"

	"github.com/paulmach/orb"
)

// unknownLabel is shown for aircraft that do not broadcast a callsign.
const unknownLabel = "Unknown"

// PositionSource identifies where a state vector's position came from.
type PositionSource int64

const (
	SourceADSB    PositionSource = 0
	SourceASTERIX PositionSource = 1
	SourceMLAT    PositionSource = 2
	SourceFLARM   PositionSource = 3
)

// StateVector is one decoded aircraft state.
//
// Every field is optional; nil means the wire value was absent, null or of
// the wrong kind. A StateVector is built once by [DecodeRecord] and should be
// treated as immutable.
type StateVector struct {
	ICAO24         *string  `json:"icao24"`
	Callsign       *string  `json:"callsign"`
	OriginCountry  *string  `json:"origin_country"`
	TimePosition   *int64   `json:"time_position"`
	LastContact    *int64   `json:"last_contact"`
	Longitude      *float64 `json:"longitude"`
	Latitude       *float64 `json:"latitude"`
	BaroAltitude   *float64 `json:"baro_altitude"`
	OnGround       *bool    `json:"on_ground"`
	Velocity       *float64 `json:"velocity"`
	TrueTrack      *float64 `json:"true_track"`
	VerticalRate   *float64 `json:"vertical_rate"`
	GeoAltitude    *float64 `json:"geo_altitude"`
	Squawk         *string  `json:"squawk"`
	SPI            *bool    `json:"spi"`
	PositionSource *int64   `json:"position_source"`
}

// fieldSpec binds one wire index to one StateVector field.
type fieldSpec struct {
	index int
	name  string
	kind  Kind
	set   func(sv *StateVector, v Value) bool
}

func stringField(dst func(*StateVector) **string) func(*StateVector, Value) bool {
	return func(sv *StateVector, v Value) bool {
		s, ok := v.AsString()
		if ok {
			*dst(sv) = &s
		}
		return ok
	}
}

func intField(dst func(*StateVector) **int64) func(*StateVector, Value) bool {
	return func(sv *StateVector, v Value) bool {
		n, ok := v.AsInt()
		if ok {
			*dst(sv) = &n
		}
		return ok
	}
}

func floatField(dst func(*StateVector) **float64) func(*StateVector, Value) bool {
	return func(sv *StateVector, v Value) bool {
		f, ok := v.AsFloat()
		if ok {
			*dst(sv) = &f
		}
		return ok
	}
}

func boolField(dst func(*StateVector) **bool) func(*StateVector, Value) bool {
	return func(sv *StateVector, v Value) bool {
		b, ok := v.AsBool()
		if ok {
			*dst(sv) = &b
		}
		return ok
	}
}

// stateFields is the positional schema of a state array. Index 12 (sensor
// serials) is not decoded.
var stateFields = []fieldSpec{
	{0, "icao24", KindString, stringField(func(s *StateVector) **string { return &s.ICAO24 })},
	{1, "callsign", KindString, stringField(func(s *StateVector) **string { return &s.Callsign })},
	{2, "origin_country", KindString, stringField(func(s *StateVector) **string { return &s.OriginCountry })},
	{3, "time_position", KindInt, intField(func(s *StateVector) **int64 { return &s.TimePosition })},
	{4, "last_contact", KindInt, intField(func(s *StateVector) **int64 { return &s.LastContact })},
	{5, "longitude", KindFloat, floatField(func(s *StateVector) **float64 { return &s.Longitude })},
	{6, "latitude", KindFloat, floatField(func(s *StateVector) **float64 { return &s.Latitude })},
	{7, "baro_altitude", KindFloat, floatField(func(s *StateVector) **float64 { return &s.BaroAltitude })},
	{8, "on_ground", KindBool, boolField(func(s *StateVector) **bool { return &s.OnGround })},
	{9, "velocity", KindFloat, floatField(func(s *StateVector) **float64 { return &s.Velocity })},
	{10, "true_track", KindFloat, floatField(func(s *StateVector) **float64 { return &s.TrueTrack })},
	{11, "vertical_rate", KindFloat, floatField(func(s *StateVector) **float64 { return &s.VerticalRate })},
	{13, "geo_altitude", KindFloat, floatField(func(s *StateVector) **float64 { return &s.GeoAltitude })},
	{14, "squawk", KindString, stringField(func(s *StateVector) **string { return &s.Squawk })},
	{15, "spi", KindBool, boolField(func(s *StateVector) **bool { return &s.SPI })},
	{16, "position_source", KindInt, intField(func(s *StateVector) **int64 { return &s.PositionSource })},
}

// FieldCount is the number of named fields in a [StateVector].
var FieldCount = len(stateFields)

// DecodeRecord maps a raw state array onto a [StateVector].
//
// It never fails: fields whose value is missing, null or of the wrong kind
// stay nil.
func DecodeRecord(rec RawRecord) StateVector {
	var sv StateVector
	for _, f := range stateFields {
		v := rec.At(f.index)
		if v.IsNull() {
			continue
		}
		f.set(&sv, v)
	}
	return sv
}

// Decode decodes every record in order. The result always has the same
// length as records.
func Decode(records []RawRecord) []StateVector {
	out := make([]StateVector, len(records))
	for i, rec := range records {
		out[i] = DecodeRecord(rec)
	}
	return out
}

// SetFields returns the wire names of the fields that decoded successfully.
func (sv StateVector) SetFields() []string {
	var names []string
	for _, f := range stateFields {
		if sv.isSet(f.index) {
			names = append(names, f.name)
		}
	}
	return names
}

func (sv StateVector) isSet(index int) bool {
	switch index {
	case 0:
		return sv.ICAO24 != nil
	case 1:
		return sv.Callsign != nil
	case 2:
		return sv.OriginCountry != nil
	case 3:
		return sv.TimePosition != nil
	case 4:
		return sv.LastContact != nil
	case 5:
		return sv.Longitude != nil
	case 6:
		return sv.Latitude != nil
	case 7:
		return sv.BaroAltitude != nil
	case 8:
		return sv.OnGround != nil
	case 9:
		return sv.Velocity != nil
	case 10:
		return sv.TrueTrack != nil
	case 11:
		return sv.VerticalRate != nil
	case 13:
		return sv.GeoAltitude != nil
	case 14:
		return sv.Squawk != nil
	case 15:
		return sv.SPI != nil
	case 16:
		return sv.PositionSource != nil
	}
	return false
}

// Position returns the aircraft's position as an orb point (lon, lat).
// ok is false unless both coordinates are set.
func (sv StateVector) Position() (orb.Point, bool) {
	if sv.Longitude == nil || sv.Latitude == nil {
		return orb.Point{}, false
	}
	return orb.Point{*sv.Longitude, *sv.Latitude}, true
}

// Source returns the typed position source, if set.
func (sv StateVector) Source() (PositionSource, bool) {
	if sv.PositionSource == nil {
		return 0, false
	}
	return PositionSource(*sv.PositionSource), true
}

// String returns the conventional name of the source.
func (p PositionSource) String() string {
	switch p {
	case SourceADSB:
		return "ADS-B"
	case SourceASTERIX:
		return "ASTERIX"
	case SourceMLAT:
		return "MLAT"
	case SourceFLARM:
		return "FLARM"
	default:
		return "unknown"
	}
}

// Label returns the callsign without the wire's space padding, or "Unknown".
func (sv StateVector) Label() string {
	if sv.Callsign == nil {
		return unknownLabel
	}
	if s := strings.TrimSpace(*sv.Callsign); s != "" {
		return s
	}
	return unknownLabel
}

// Positioned returns the state vectors that carry both coordinates, in order.
func Positioned(states []StateVector) []StateVector {
	out := make([]StateVector, 0, len(states))
	for _, sv := range states {
		if _, ok := sv.Position(); ok {
			out = append(out, sv)
		}
	}
	return out
}

// Within returns the positioned state vectors that fall inside b.
func Within(states []StateVector, b orb.Bound) []StateVector {
	out := make([]StateVector, 0, len(states))
	for _, sv := range states {
		if p, ok := sv.Position(); ok && b.Contains(p) {
			out = append(out, sv)
		}
	}
	return out
}
