package sim

import (
	"github.com/annel0/flight-telemetry/internal/vec"
)

// VesselState представляет состояние конечного автомата судна
type VesselState interface {
	Name() string
	Enter(v *Vessel)
	Update(v *Vessel, env Environment) VesselState
	Exit(v *Vessel)
}

// Environment представляет интерфейс для взаимодействия судна с симуляцией
type Environment interface {
	Body() *CelestialBody
	Altitude(pos vec.Vec3) float64
	Apoapsis(v *Vessel) float64
}

// Имена состояний судна в телеметрии
const (
	StatePreLaunch = "pre_launch"
	StateAscent    = "ascent"
	StateOrbit     = "orbit"
	StateReentry   = "reentry"
	StateLanded    = "landed"
)

// === Конкретные состояния ===

// PreLaunchState - судно на стартовой площадке
type PreLaunchState struct{}

// NewPreLaunchState создаёт состояние ожидания старта
func NewPreLaunchState() *PreLaunchState { return &PreLaunchState{} }

func (s *PreLaunchState) Name() string { return StatePreLaunch }

func (s *PreLaunchState) Enter(v *Vessel) {}

func (s *PreLaunchState) Update(v *Vessel, env Environment) VesselState {
	// Старт засчитывается при появлении вертикальной скорости
	radial := v.Position.Normalize()
	if v.Velocity.Dot(radial) > 1.0 {
		return NewAscentState()
	}
	return s
}

func (s *PreLaunchState) Exit(v *Vessel) {}

// AscentState - набор высоты
type AscentState struct{}

// NewAscentState создаёт состояние набора высоты
func NewAscentState() *AscentState { return &AscentState{} }

func (s *AscentState) Name() string { return StateAscent }

func (s *AscentState) Enter(v *Vessel) {}

func (s *AscentState) Update(v *Vessel, env Environment) VesselState {
	alt := env.Altitude(v.Position)
	radial := v.Position.Normalize()
	verticalSpeed := v.Velocity.Dot(radial)

	// Вышли за атмосферу с апоцентром выше атмосферы — орбита
	if alt > env.Body().AtmoHeight && env.Apoapsis(v) > env.Body().AtmoHeight {
		return NewOrbitState()
	}

	// Снижение внутри атмосферы — возврат
	if verticalSpeed < 0 && alt < env.Body().AtmoHeight {
		return NewReentryState()
	}

	return s
}

func (s *AscentState) Exit(v *Vessel) {}

// OrbitState - судно на орбите
type OrbitState struct{}

// NewOrbitState создаёт орбитальное состояние
func NewOrbitState() *OrbitState { return &OrbitState{} }

func (s *OrbitState) Name() string { return StateOrbit }

func (s *OrbitState) Enter(v *Vessel) {}

func (s *OrbitState) Update(v *Vessel, env Environment) VesselState {
	// Вход в атмосферу завершает орбитальный полёт
	if env.Altitude(v.Position) < env.Body().AtmoHeight {
		return NewReentryState()
	}
	return s
}

func (s *OrbitState) Exit(v *Vessel) {}

// ReentryState - вход в атмосферу
type ReentryState struct{}

// NewReentryState создаёт состояние входа в атмосферу
func NewReentryState() *ReentryState { return &ReentryState{} }

func (s *ReentryState) Name() string { return StateReentry }

func (s *ReentryState) Enter(v *Vessel) {}

func (s *ReentryState) Update(v *Vessel, env Environment) VesselState {
	alt := env.Altitude(v.Position)

	if alt <= 0 {
		return NewLandedState()
	}

	// Разгон обратно за атмосферу (отскок) — снова орбита
	if alt > env.Body().AtmoHeight && env.Apoapsis(v) > env.Body().AtmoHeight {
		return NewOrbitState()
	}

	return s
}

func (s *ReentryState) Exit(v *Vessel) {}

// LandedState - судно на поверхности
type LandedState struct{}

// NewLandedState создаёт состояние посадки
func NewLandedState() *LandedState { return &LandedState{} }

func (s *LandedState) Name() string { return StateLanded }

func (s *LandedState) Enter(v *Vessel) {
	// Останавливаем судно; к поверхности его прижимает шаг симуляции
	v.Velocity = vec.Zero()
}

func (s *LandedState) Update(v *Vessel, env Environment) VesselState {
	return s
}

func (s *LandedState) Exit(v *Vessel) {}
