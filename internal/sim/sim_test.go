package sim

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/flight-telemetry/internal/vec"
)

// circularOrbitVessel возвращает судно на круговой орбите указанной высоты
func circularOrbitVessel(t *testing.T, body *CelestialBody, altitude float64) *Vessel {
	t.Helper()

	r := body.Radius + altitude
	speed := math.Sqrt(body.GM / r)

	v := NewVessel("test-ship", vec.Vec3{X: r}, vec.Vec3{Y: speed})
	v.SetState(NewOrbitState())
	return v
}

func TestComputeFlightCircularOrbit(t *testing.T) {
	body := DefaultBody()
	v := circularOrbitVessel(t, body, 100000)

	fd := ComputeFlight(v, body, 0)

	// Prograde совпадает с направлением скорости и единичен
	assert.InDelta(t, 1.0, fd.Prograde.Length(), 1e-9)
	assert.InDelta(t, 1.0, fd.Prograde.Y, 1e-9)

	// Retrograde противоположен prograde
	assert.True(t, fd.Retrograde.ApproxEquals(fd.Prograde.Negate(), 1e-12))

	// Нормаль перпендикулярна и позиции, и скорости
	assert.InDelta(t, 0, fd.Normal.Dot(fd.Radial), 1e-9)
	assert.InDelta(t, 0, fd.Normal.Dot(fd.Prograde), 1e-9)

	// Для круговой орбиты апоцентр и перицентр близки к высоте
	assert.InDelta(t, 100000, fd.Altitude, 1)
	assert.InDelta(t, fd.Altitude, fd.Apoapsis, 100)
	assert.InDelta(t, fd.Altitude, fd.Periapsis, 100)
}

func TestOrbitalExtremesHyperbolic(t *testing.T) {
	body := DefaultBody()
	r := body.Radius + 100000

	// Скорость выше параболической — апоцентра нет
	escape := math.Sqrt(2 * body.GM / r)
	apo, peri := orbitalExtremes(vec.Vec3{X: r}, vec.Vec3{Y: escape * 1.1}, body)

	assert.True(t, math.IsInf(apo, 1))
	assert.False(t, math.IsNaN(peri))
}

func TestComputeFlightEscapeTrajectory(t *testing.T) {
	body := DefaultBody()
	r := body.Radius + 100000
	escape := math.Sqrt(2 * body.GM / r)

	v := NewVessel("escape-ship", vec.Vec3{X: r}, vec.Vec3{Y: escape * 1.1})
	fd := ComputeFlight(v, body, 0)

	// Уход из сферы притяжения: апоцентр заменяется условным значением
	assert.True(t, fd.Escape)
	assert.Equal(t, -1.0, fd.Apoapsis)
	assert.False(t, math.IsInf(fd.Apoapsis, 0))

	// Кадр должен без ошибок кодироваться в JSON
	_, err := json.Marshal(fd)
	require.NoError(t, err)
}

func TestStepKeepsCircularOrbitStable(t *testing.T) {
	body := DefaultBody()
	s := NewSimulation(Options{Body: body, TickRate: 60})

	v := circularOrbitVessel(t, body, 100000)
	require.NoError(t, s.AddVessel(v))

	r0 := v.Position.Length()

	// Минута симуляции на 60 Гц
	for i := 0; i < 3600; i++ {
		s.Step(1.0 / 60.0)
	}

	// Радиус круговой орбиты не должен заметно уплыть
	r1 := v.Position.Length()
	assert.InDelta(t, r0, r1, r0*0.01)
	assert.Equal(t, StateOrbit, v.StateName())
}

func TestFSMAscentToOrbit(t *testing.T) {
	body := DefaultBody()
	s := NewSimulation(Options{Body: body})

	r := body.Radius + body.AtmoHeight + 10000
	speed := math.Sqrt(body.GM / r)
	v := NewVessel("climber", vec.Vec3{X: r}, vec.Vec3{Y: speed})
	v.SetState(NewAscentState())
	require.NoError(t, s.AddVessel(v))

	s.Step(1.0 / 60.0)
	assert.Equal(t, StateOrbit, v.StateName())
}

func TestFSMReentryToLanded(t *testing.T) {
	body := DefaultBody()
	s := NewSimulation(Options{Body: body})

	// Судно у самой поверхности, падает вертикально
	v := NewVessel("lander", vec.Vec3{X: body.Radius + 1}, vec.Vec3{X: -50})
	v.SetState(NewReentryState())
	require.NoError(t, s.AddVessel(v))

	s.Step(1.0 / 60.0)

	assert.Equal(t, StateLanded, v.StateName())
	assert.True(t, v.Velocity.IsZero())
	assert.InDelta(t, body.Radius, v.Position.Length(), 1e-6)
}

func TestFlightActiveVessel(t *testing.T) {
	body := DefaultBody()
	s := NewSimulation(Options{Body: body})

	_, err := s.Flight("")
	assert.ErrorIs(t, err, ErrNoActiveVessel)

	v := circularOrbitVessel(t, body, 80000)
	require.NoError(t, s.AddVessel(v))

	// Первое судно автоматически активное
	fd, err := s.Flight("")
	require.NoError(t, err)
	assert.Equal(t, v.ID, fd.VesselID)

	_, err = s.Flight("no-such-id")
	assert.ErrorIs(t, err, ErrVesselNotFound)
}

func TestAtmosphereDensityProfile(t *testing.T) {
	body := DefaultBody()
	atmo := NewAtmosphere(body, 42)

	sea := atmo.Density(0, 0)
	mid := atmo.Density(20000, 0)
	top := atmo.Density(body.AtmoHeight, 0)

	assert.Greater(t, sea, mid)
	assert.Greater(t, mid, 0.0)
	assert.Equal(t, 0.0, top)
}

func TestVesselInfosMarksActive(t *testing.T) {
	body := DefaultBody()
	s := NewSimulation(Options{Body: body})

	a := circularOrbitVessel(t, body, 80000)
	b := circularOrbitVessel(t, body, 120000)
	require.NoError(t, s.AddVessel(a))
	require.NoError(t, s.AddVessel(b))
	require.NoError(t, s.SetActiveVessel(b.ID))

	infos := s.VesselInfos()
	require.Len(t, infos, 2)
	assert.False(t, infos[0].Active)
	assert.True(t, infos[1].Active)
}
