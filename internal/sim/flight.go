package sim

import (
	"math"

	"github.com/annel0/flight-telemetry/internal/protocol"
	"github.com/annel0/flight-telemetry/internal/vec"
)

// ComputeFlight вычисляет телеметрию полёта судна относительно центрального тела.
// Все направляющие векторы нормированы и выражены в инерциальной системе тела.
func ComputeFlight(v *Vessel, body *CelestialBody, simTime float64) protocol.FlightData {
	r := v.Position.Length()
	speed := v.Velocity.Length()

	prograde := v.Velocity.Normalize()
	radial := v.Position.Normalize()
	normal := v.Position.Cross(v.Velocity).Normalize()

	apo, peri := orbitalExtremes(v.Position, v.Velocity, body)

	// Бесконечный апоцентр незамкнутой траектории не кодируется в JSON,
	// поэтому наружу уходит флаг ухода и условное значение -1.
	escape := math.IsInf(apo, 1)
	if escape {
		apo = -1
	}

	return protocol.FlightData{
		VesselID:   v.ID,
		Position:   v.Position,
		Velocity:   v.Velocity,
		Prograde:   prograde,
		Retrograde: prograde.Negate(),
		Normal:     normal,
		Radial:     radial,
		Speed:      speed,
		Altitude:   body.AltitudeOf(r),
		Apoapsis:   apo,
		Periapsis:  peri,
		Escape:     escape,
		State:      v.StateName(),
		SimTime:    simTime,
	}
}

// orbitalExtremes возвращает высоты апоцентра и перицентра над поверхностью.
// Для незамкнутых траекторий апоцентр равен +Inf.
func orbitalExtremes(pos, vel vec.Vec3, body *CelestialBody) (apo, peri float64) {
	r := pos.Length()
	if r == 0 {
		return 0, 0
	}

	v2 := vel.LengthSq()
	energy := v2/2.0 - body.GM/r
	h := pos.Cross(vel).Length()

	// Эксцентриситет из интеграла энергии и момента импульса
	ecc2 := 1.0 + 2.0*energy*h*h/(body.GM*body.GM)
	if ecc2 < 0 {
		ecc2 = 0
	}
	ecc := math.Sqrt(ecc2)

	if energy >= 0 {
		// Параболическая/гиперболическая траектория
		semiLatus := h * h / body.GM
		peri = semiLatus/(1.0+ecc) - body.Radius
		return math.Inf(1), peri
	}

	a := -body.GM / (2.0 * energy)
	apo = a*(1.0+ecc) - body.Radius
	peri = a*(1.0-ecc) - body.Radius
	return apo, peri
}
