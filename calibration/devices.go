package calibration

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// RecognitionThreshold is the minimum confidence for an automatic
// recognition to trigger a calibration.
const RecognitionThreshold = 0.9

// DeviceProfile describes the current signature of a known appliance.
type DeviceProfile struct {
	MinCurrent      float64
	MaxCurrent      float64
	TypicalCurrent  float64
	Name            string
	ConfidenceBoost float64
}

// Contains reports whether the reading falls in the profile's range.
func (p DeviceProfile) Contains(amps float64) bool {
	return amps >= p.MinCurrent && amps <= p.MaxCurrent
}

// builtinProfiles is the factory catalog. Order matters: recognition takes
// the first containing range.
var builtinProfiles = []DeviceProfile{
	{0.4, 0.7, 0.5, "60W Incandescent Bulb", 1.2},
	{0.8, 1.2, 1.0, "100W Incandescent Bulb", 1.2},
	{4.0, 6.0, 5.0, "Hair Dryer Low Setting", 1.5},
	{10.0, 15.0, 12.5, "Hair Dryer High Setting", 1.5},
	{8.0, 12.0, 10.0, "Space Heater", 1.3},
	{12.0, 16.0, 14.0, "Microwave Oven", 1.4},
	{6.0, 10.0, 8.0, "Coffee Maker", 1.1},
	{0.1, 0.3, 0.2, "LED Strip/Small Electronics", 0.8},
	{2.0, 4.0, 3.0, "Laptop/Monitor", 0.9},
	{0.02, 0.1, 0.05, "Phone Charger/Standby", 0.5},
}

// Recognizer classifies stable current readings against the device catalog.
// The catalog is the built-in set plus any profiles appended at runtime.
type Recognizer struct {
	mu       sync.Mutex
	profiles []DeviceProfile
}

func NewRecognizer() *Recognizer {
	r := &Recognizer{profiles: make([]DeviceProfile, len(builtinProfiles))}
	copy(r.profiles, builtinProfiles)
	return r
}

// Recognize returns the first profile whose range contains the reading.
func (r *Recognizer) Recognize(amps float64) (DeviceProfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.Contains(amps) {
			return p, true
		}
	}
	return DeviceProfile{}, false
}

// AddProfile appends a profile to the catalog. Profiles are never removed
// or reordered, keeping recognition deterministic.
func (r *Recognizer) AddProfile(p DeviceProfile) {
	r.mu.Lock()
	r.profiles = append(r.profiles, p)
	r.mu.Unlock()
	log.Infof("Added device profile %q: %.2f-%.2fA", p.Name, p.MinCurrent, p.MaxCurrent)
}

// Profiles returns a copy of the catalog in recognition order.
func (r *Recognizer) Profiles() []DeviceProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DeviceProfile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// List formats the catalog for the LIST_DEVICES response.
func (r *Recognizer) List() string {
	var b strings.Builder
	b.WriteString("Known devices:\n")
	for _, p := range r.Profiles() {
		fmt.Fprintf(&b, "  %s: %.1f-%.1fA (typ: %.1fA)\n", p.Name, p.MinCurrent, p.MaxCurrent, p.TypicalCurrent)
	}
	return b.String()
}

// Confidence scores how well a reading matches a profile at the given
// sensitivity. The score is deliberately not clamped to [0, 1]: a typical
// reading on a boosted profile can exceed 1.0, and a reading at the edge
// of a range whose typical sits off-center can go negative.
func Confidence(amps float64, p DeviceProfile, sensitivity float64) float64 {
	matchQuality := 1.0 - math.Abs(amps-p.TypicalCurrent)/(p.MaxCurrent-p.MinCurrent)
	return matchQuality * p.ConfidenceBoost * sensitivity
}
