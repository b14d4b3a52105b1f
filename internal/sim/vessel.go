package sim

import (
	"github.com/google/uuid"

	"github.com/annel0/flight-telemetry/internal/vec"
)

// Vessel представляет судно в симуляции
type Vessel struct {
	ID       string
	Name     string
	Mass     float64 // кг
	DragArea float64 // Эффективная площадь сопротивления Cd*A, м^2

	Position vec.Vec3 // Относительно центра тела, м
	Velocity vec.Vec3 // м/с

	CurrentState VesselState
	Data         map[string]interface{}
}

// NewVessel создает судно с указанным именем и начальным вектором состояния
func NewVessel(name string, pos, vel vec.Vec3) *Vessel {
	v := &Vessel{
		ID:       uuid.NewString(),
		Name:     name,
		Mass:     5000.0,
		DragArea: 4.0,
		Position: pos,
		Velocity: vel,
		Data:     make(map[string]interface{}),
	}
	v.SetState(NewPreLaunchState())
	return v
}

// SetState устанавливает новое состояние судна
func (v *Vessel) SetState(state VesselState) {
	if v.CurrentState != nil {
		v.CurrentState.Exit(v)
	}

	v.CurrentState = state

	if v.CurrentState != nil {
		v.CurrentState.Enter(v)
	}
}

// UpdateState прогоняет конечный автомат судна
func (v *Vessel) UpdateState(env Environment) (changed bool, from, to string) {
	if v.CurrentState == nil {
		return false, "", ""
	}

	newState := v.CurrentState.Update(v, env)
	if newState != v.CurrentState {
		from = v.CurrentState.Name()
		to = newState.Name()
		v.CurrentState.Exit(v)
		v.CurrentState = newState
		v.CurrentState.Enter(v)
		return true, from, to
	}
	return false, "", ""
}

// StateName возвращает имя текущего состояния
func (v *Vessel) StateName() string {
	if v.CurrentState == nil {
		return "unknown"
	}
	return v.CurrentState.Name()
}
