package normalize

import "strings"

// Machine type vocabulary inferred from machine names.
const (
	TypeMilling = "Milling"
	TypeLathe   = "Lathe"
	TypeSaw     = "Saw"
	TypeUnknown = "Unknown"
)

// MachineType infers a machine's type from its name by case-insensitive
// substring match. This is a heuristic, not a lookup; names outside the
// vocabulary map to Unknown.
func MachineType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "milling"):
		return TypeMilling
	case strings.Contains(lower, "lathe"):
		return TypeLathe
	case strings.Contains(lower, "saw"):
		return TypeSaw
	default:
		return TypeUnknown
	}
}

// rpmBand is the normal spindle speed range for a machine type.
type rpmBand struct {
	min, max float64
}

// rpmBands holds per-type spindle speed limits. Types absent from the
// table are not checked.
var rpmBands = map[string]rpmBand{
	TypeMilling: {min: 1000, max: 4000},
	TypeLathe:   {min: 500, max: 3000},
}

// defaultDistance is used when a station pair is not in the table (meters).
const defaultDistance = 30.0

// stationDistances maps station pairs to distances in meters. Lookups
// are symmetric.
var stationDistances = map[[2]string]float64{
	{"Warehouse", "Saw1"}:     30.0,
	{"Saw1", "Milling1"}:      25.0,
	{"Saw1", "Milling2"}:      35.0,
	{"Saw1", "Lathe1"}:        40.0,
	{"Milling1", "Warehouse"}: 45.0,
	{"Milling2", "Warehouse"}: 50.0,
	{"Lathe1", "Warehouse"}:   55.0,
}

// StationDistance estimates the distance in meters between two named
// stations, falling back to a default for unknown pairs.
func StationDistance(from, to string) float64 {
	if d, ok := stationDistances[[2]string{from, to}]; ok {
		return d
	}
	if d, ok := stationDistances[[2]string{to, from}]; ok {
		return d
	}
	return defaultDistance
}
