package client

import (
	"context"

	"github.com/annel0/flight-telemetry/internal/protocol"
	"github.com/annel0/flight-telemetry/internal/vec"
)

// Vessel хэндл судна на сервере телеметрии
type Vessel struct {
	client *Client
	ID     string
	Name   string
}

// Flight возвращает хэндл телеметрии полёта судна
func (v *Vessel) Flight() *Flight {
	return &Flight{client: v.client, vesselID: v.ID}
}

// Flight предоставляет запросы телеметрии полёта.
// Каждый вызов выполняет синхронный запрос к серверу.
type Flight struct {
	client   *Client
	vesselID string
}

// Data возвращает полный кадр телеметрии
func (f *Flight) Data(ctx context.Context) (protocol.FlightData, error) {
	return f.client.flightData(ctx, f.vesselID)
}

// Prograde возвращает направление вектора скорости судна
func (f *Flight) Prograde(ctx context.Context) (vec.Vec3, error) {
	fd, err := f.Data(ctx)
	if err != nil {
		return vec.Vec3{}, err
	}
	return fd.Prograde, nil
}

// Retrograde возвращает направление, противоположное вектору скорости
func (f *Flight) Retrograde(ctx context.Context) (vec.Vec3, error) {
	fd, err := f.Data(ctx)
	if err != nil {
		return vec.Vec3{}, err
	}
	return fd.Retrograde, nil
}

// Normal возвращает нормаль к плоскости орбиты
func (f *Flight) Normal(ctx context.Context) (vec.Vec3, error) {
	fd, err := f.Data(ctx)
	if err != nil {
		return vec.Vec3{}, err
	}
	return fd.Normal, nil
}

// Position возвращает позицию судна относительно центра тела
func (f *Flight) Position(ctx context.Context) (vec.Vec3, error) {
	fd, err := f.Data(ctx)
	if err != nil {
		return vec.Vec3{}, err
	}
	return fd.Position, nil
}

// Velocity возвращает вектор скорости судна
func (f *Flight) Velocity(ctx context.Context) (vec.Vec3, error) {
	fd, err := f.Data(ctx)
	if err != nil {
		return vec.Vec3{}, err
	}
	return fd.Velocity, nil
}

// Speed возвращает модуль скорости, м/с
func (f *Flight) Speed(ctx context.Context) (float64, error) {
	fd, err := f.Data(ctx)
	if err != nil {
		return 0, err
	}
	return fd.Speed, nil
}

// Altitude возвращает высоту над поверхностью, м
func (f *Flight) Altitude(ctx context.Context) (float64, error) {
	fd, err := f.Data(ctx)
	if err != nil {
		return 0, err
	}
	return fd.Altitude, nil
}
