package tests

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/flight-telemetry/client"
	"github.com/annel0/flight-telemetry/internal/auth"
	"github.com/annel0/flight-telemetry/internal/network"
	"github.com/annel0/flight-telemetry/internal/sim"
	"github.com/annel0/flight-telemetry/internal/vec"
)

// startTestServer запускает сокет-сервер на свободном порту с судном
// на круговой орбите 100 км. Симуляция не тикает, телеметрия детерминирована.
func startTestServer(t *testing.T, authn network.Authenticator, requireAuth bool) (*network.TelemetryServer, *sim.Simulation, *sim.Vessel) {
	t.Helper()

	body := sim.DefaultBody()
	simulation := sim.NewSimulation(sim.Options{Body: body})

	orbitRadius := body.Radius + 100000.0
	orbitSpeed := math.Sqrt(body.GM / orbitRadius)
	orbiter := sim.NewVessel("Test Orbiter",
		vec.Vec3{X: orbitRadius},
		vec.Vec3{Y: orbitSpeed})
	orbiter.SetState(sim.NewOrbitState())
	require.NoError(t, simulation.AddVessel(orbiter))

	server := network.NewTelemetryServer(network.ServerConfig{
		TCPAddr:      "127.0.0.1:0",
		StreamRateHz: 50,
		RequireAuth:  requireAuth,
	}, simulation, authn)
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	return server, simulation, orbiter
}

func TestClientProgradeEndToEnd(t *testing.T) {
	server, _, orbiter := startTestServer(t, nil, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Connect(ctx, server.Addr())
	require.NoError(t, err)
	defer c.Close()

	vessel, err := c.ActiveVessel(ctx)
	require.NoError(t, err)
	assert.Equal(t, orbiter.ID, vessel.ID)
	assert.Equal(t, "Test Orbiter", vessel.Name)

	prograde, err := vessel.Flight().Prograde(ctx)
	require.NoError(t, err)

	// Прогрейд — единичный вектор вдоль скорости, здесь +Y
	expected := orbiter.Velocity.Normalize()
	assert.InDelta(t, expected.X, prograde.X, 1e-9)
	assert.InDelta(t, expected.Y, prograde.Y, 1e-9)
	assert.InDelta(t, expected.Z, prograde.Z, 1e-9)
	assert.InDelta(t, 1.0, prograde.Length(), 1e-9)
}

func TestClientFlightData(t *testing.T) {
	server, _, orbiter := startTestServer(t, nil, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Connect(ctx, server.Addr())
	require.NoError(t, err)
	defer c.Close()

	fd, err := c.Vessel(orbiter.ID).Flight().Data(ctx)
	require.NoError(t, err)

	assert.Equal(t, orbiter.ID, fd.VesselID)
	assert.Equal(t, sim.StateOrbit, fd.State)
	assert.InDelta(t, 100000.0, fd.Altitude, 1.0)
	assert.InDelta(t, orbiter.Velocity.Length(), fd.Speed, 1e-6)

	// Круговая орбита: апоцентр и перицентр совпадают с текущей высотой
	assert.InDelta(t, fd.Altitude, fd.Apoapsis, 1.0)
	assert.InDelta(t, fd.Altitude, fd.Periapsis, 1.0)

	// Ретрогрейд противоположен прогрейду
	assert.InDelta(t, -fd.Prograde.X, fd.Retrograde.X, 1e-9)
	assert.InDelta(t, -fd.Prograde.Y, fd.Retrograde.Y, 1e-9)
	assert.InDelta(t, -fd.Prograde.Z, fd.Retrograde.Z, 1e-9)

	// Запрос несуществующего судна
	_, err = c.Vessel("no-such-vessel").Flight().Data(ctx)
	require.Error(t, err)
	apiErr, ok := err.(*client.APIError)
	require.True(t, ok, "ожидалась протокольная ошибка, получено: %v", err)
	assert.NotEmpty(t, apiErr.Message)

	// Список судов
	vessels, err := c.Vessels(ctx)
	require.NoError(t, err)
	require.Len(t, vessels, 1)
	assert.True(t, vessels[0].Active)
}

func TestClientStreamFlight(t *testing.T) {
	server, _, _ := startTestServer(t, nil, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Connect(ctx, server.Addr())
	require.NoError(t, err)
	defer c.Close()

	stream, err := c.StreamFlight(ctx, "", 20)
	require.NoError(t, err)
	assert.Equal(t, 20, stream.RateHz, "запрошенная частота ниже серверной должна уважаться")

	// Ждём несколько кадров
	for i := 0; i < 3; i++ {
		select {
		case fd := <-stream.C:
			assert.NotEmpty(t, fd.VesselID)
			assert.InDelta(t, 1.0, fd.Prograde.Length(), 1e-9)
		case <-time.After(2 * time.Second):
			t.Fatalf("кадр %d не получен за 2с", i)
		}
	}

	require.NoError(t, stream.Close(ctx))
}

func TestClientAuthentication(t *testing.T) {
	userRepo := auth.NewMemoryUserRepo()
	authn, err := auth.NewTelemetryAuthenticator(userRepo, "")
	require.NoError(t, err)

	server, _, _ := startTestServer(t, authn, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Неверный пароль — рукопожатие должно провалиться
	_, err = client.Connect(ctx, server.Addr(),
		client.WithCredentials("observer", "wrong-password"))
	require.Error(t, err)

	// Корректные учётные данные
	c, err := client.Connect(ctx, server.Addr(),
		client.WithCredentials("observer", "observer"))
	require.NoError(t, err)
	token := c.Token()
	require.NotEmpty(t, token, "сервер должен выдать JWT при рукопожатии")
	require.NoError(t, c.Close())

	// Повторное подключение по выданному токену
	c2, err := client.Connect(ctx, server.Addr(), client.WithToken(token))
	require.NoError(t, err)
	defer c2.Close()

	vessel, err := c2.ActiveVessel(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, vessel.ID)
}

func TestServerRepliesOnHandlerFailure(t *testing.T) {
	server, simulation, _ := startTestServer(t, nil, false)

	// Судно с испорченным состоянием: NaN не кодируется в JSON,
	// и обработчик запроса телеметрии не сможет собрать ответ
	broken := sim.NewVessel("Broken Vessel",
		vec.Vec3{X: 700000},
		vec.Vec3{Y: math.NaN()})
	require.NoError(t, simulation.AddVessel(broken))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Connect(ctx, server.Addr())
	require.NoError(t, err)
	defer c.Close()

	// Клиент должен получить протокольную ошибку, а не ждать таймаута
	start := time.Now()
	_, err = c.Vessel(broken.ID).Flight().Data(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Less(t, time.Since(start), 2*time.Second)

	// Сессия переживает сбой обработчика: следующий запрос отвечает штатно
	_, err = c.Vessels(ctx)
	require.NoError(t, err)
}

func TestServerSessionAccounting(t *testing.T) {
	server, _, _ := startTestServer(t, nil, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Connect(ctx, server.Addr())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return server.SessionCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())

	assert.Eventually(t, func() bool {
		return server.SessionCount() == 0
	}, time.Second, 10*time.Millisecond)
}
