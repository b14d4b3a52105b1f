package sim

import (
	"math"

	"github.com/aquilax/go-perlin"
)

// Atmosphere моделирует плотность атмосферы с шумовыми возмущениями.
// Базовый профиль экспоненциальный, поверх накладывается шум Перлина,
// имитирующий локальные флуктуации плотности.
type Atmosphere struct {
	body  *CelestialBody
	noise *perlin.Perlin
}

// NewAtmosphere создает модель атмосферы для тела с указанным сидом шума
func NewAtmosphere(body *CelestialBody, seed int64) *Atmosphere {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав

	return &Atmosphere{
		body:  body,
		noise: perlin.NewPerlin(alpha, beta, n, seed),
	}
}

// Density возвращает плотность атмосферы на высоте altitude в момент simTime.
// Выше границы атмосферы плотность равна нулю.
func (a *Atmosphere) Density(altitude, simTime float64) float64 {
	if altitude >= a.body.AtmoHeight || altitude < 0 {
		if altitude < 0 {
			altitude = 0
		} else {
			return 0
		}
	}

	base := a.body.SeaLevelDensity * math.Exp(-altitude/a.body.ScaleHeight)

	// Шум от -1 до 1, масштабируем в возмущение ±5%
	n := a.noise.Noise2D(altitude/10000.0, simTime/60.0)
	return base * (1.0 + 0.05*n)
}
