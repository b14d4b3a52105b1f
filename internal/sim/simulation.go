package sim

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/flight-telemetry/internal/eventbus"
	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/annel0/flight-telemetry/internal/protocol"
	"github.com/annel0/flight-telemetry/internal/vec"
)

// Ошибки симуляции
var (
	ErrVesselNotFound  = errors.New("vessel not found")
	ErrNoActiveVessel  = errors.New("no active vessel")
	ErrDuplicateVessel = errors.New("vessel already registered")
)

// Simulation представляет движок симуляции полёта.
// Все публичные методы потокобезопасны.
type Simulation struct {
	mu         sync.RWMutex
	body       *CelestialBody
	atmosphere *Atmosphere
	vessels    map[string]*Vessel
	order      []string // порядок регистрации для стабильных списков
	activeID   string
	simTime    float64
	tickRate   int
	logger     *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options параметры создания симуляции
type Options struct {
	Body     *CelestialBody
	TickRate int   // Гц
	Seed     int64 // Сид атмосферного шума
}

// NewSimulation создает симуляцию с указанными параметрами
func NewSimulation(opts Options) *Simulation {
	body := opts.Body
	if body == nil {
		body = DefaultBody()
	}

	tickRate := opts.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}

	return &Simulation{
		body:       body,
		atmosphere: NewAtmosphere(body, opts.Seed),
		vessels:    make(map[string]*Vessel),
		tickRate:   tickRate,
		logger:     logging.GetSimLogger(),
	}
}

// Body возвращает центральное тело (реализация Environment)
func (s *Simulation) Body() *CelestialBody {
	return s.body
}

// Altitude возвращает высоту позиции над поверхностью (реализация Environment)
func (s *Simulation) Altitude(pos vec.Vec3) float64 {
	return s.body.AltitudeOf(pos.Length())
}

// Apoapsis возвращает высоту апоцентра судна (реализация Environment)
func (s *Simulation) Apoapsis(v *Vessel) float64 {
	apo, _ := orbitalExtremes(v.Position, v.Velocity, s.body)
	return apo
}

// AddVessel регистрирует судно в симуляции.
// Первое зарегистрированное судно становится активным.
func (s *Simulation) AddVessel(v *Vessel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vessels[v.ID]; exists {
		return ErrDuplicateVessel
	}

	s.vessels[v.ID] = v
	s.order = append(s.order, v.ID)

	if s.activeID == "" {
		s.activeID = v.ID
	}

	s.logger.Info("Vessel registered: id=%s name=%s state=%s", v.ID, v.Name, v.StateName())
	return nil
}

// SetActiveVessel назначает активное судно
func (s *Simulation) SetActiveVessel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vessels[id]; !exists {
		return ErrVesselNotFound
	}
	s.activeID = id
	return nil
}

// ActiveVesselID возвращает идентификатор и имя активного судна
func (s *Simulation) ActiveVesselID() (id, name string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeID == "" {
		return "", "", ErrNoActiveVessel
	}
	return s.activeID, s.vessels[s.activeID].Name, nil
}

// VesselInfos возвращает список судов для протокола
func (s *Simulation) VesselInfos() []protocol.VesselInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]protocol.VesselInfo, 0, len(s.order))
	for _, id := range s.order {
		v := s.vessels[id]
		infos = append(infos, protocol.VesselInfo{
			ID:     v.ID,
			Name:   v.Name,
			State:  v.StateName(),
			Active: id == s.activeID,
		})
	}
	return infos
}

// Flight возвращает телеметрию судна.
// Пустой id означает активное судно.
func (s *Simulation) Flight(id string) (protocol.FlightData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" {
		id = s.activeID
		if id == "" {
			return protocol.FlightData{}, ErrNoActiveVessel
		}
	}

	v, exists := s.vessels[id]
	if !exists {
		return protocol.FlightData{}, ErrVesselNotFound
	}

	return ComputeFlight(v, s.body, s.simTime), nil
}

// SimTime возвращает время симуляции в секундах
func (s *Simulation) SimTime() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.simTime
}

// Start запускает цикл тиков симуляции
func (s *Simulation) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	dt := 1.0 / float64(s.tickRate)
	interval := time.Duration(float64(time.Second) / float64(s.tickRate))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Step(dt)
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Info("Simulation started: tick_rate=%dHz body=%s", s.tickRate, s.body.Name)
}

// Stop останавливает цикл тиков и дожидается завершения
func (s *Simulation) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Simulation stopped at t=%.1fs", s.SimTime())
}

// Step выполняет один шаг интегрирования длительностью dt секунд
func (s *Simulation) Step(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.simTime += dt

	for _, id := range s.order {
		v := s.vessels[id]

		if v.StateName() == StateLanded {
			s.clampToSurface(v)
			continue
		}

		s.integrate(v, dt)

		if changed, from, to := v.UpdateState(s); changed {
			s.logger.Info("Vessel %s state: %s -> %s (alt=%.0fm)", v.Name, from, to, s.Altitude(v.Position))
			s.publishTransition(v, from, to)
		}
	}
}

// integrate выполняет полушаг семи-неявного Эйлера: скорость, затем позиция
func (s *Simulation) integrate(v *Vessel, dt float64) {
	r := v.Position.Length()
	if r == 0 {
		return
	}

	// Гравитация центрального тела
	accel := v.Position.Scale(-s.body.GM / (r * r * r))

	// Аэродинамическое сопротивление внутри атмосферы
	alt := s.body.AltitudeOf(r)
	if alt < s.body.AtmoHeight {
		rho := s.atmosphere.Density(alt, s.simTime)
		speed := v.Velocity.Length()
		if rho > 0 && speed > 0 {
			dragMag := 0.5 * rho * v.DragArea * speed / v.Mass
			accel = accel.Add(v.Velocity.Scale(-dragMag))
		}
	}

	v.Velocity = v.Velocity.Add(accel.Scale(dt))
	v.Position = v.Position.Add(v.Velocity.Scale(dt))

	// Не позволяем судну провалиться под поверхность
	if v.Position.Length() < s.body.Radius {
		s.clampToSurface(v)
	}
}

// clampToSurface прижимает судно к поверхности тела
func (s *Simulation) clampToSurface(v *Vessel) {
	if v.Position.IsZero() {
		v.Position = vec.Vec3{X: s.body.Radius}
		return
	}
	v.Position = v.Position.Normalize().Scale(s.body.Radius)
}

// publishTransition отправляет событие смены состояния в глобальную шину
func (s *Simulation) publishTransition(v *Vessel, from, to string) {
	payload, err := json.Marshal(map[string]string{
		"vessel_id": v.ID,
		"name":      v.Name,
		"from":      from,
		"to":        to,
	})
	if err != nil {
		return
	}

	_ = eventbus.Publish(context.Background(), &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    "sim",
		EventType: eventbus.EventVesselState,
		Version:   1,
		Payload:   payload,
	})
}
