package sim

// CelestialBody описывает центральное тело, вокруг которого движутся суда.
type CelestialBody struct {
	Name       string
	GM         float64 // Гравитационный параметр, м^3/с^2
	Radius     float64 // Радиус тела, м
	AtmoHeight float64 // Высота атмосферы над поверхностью, м

	// SeaLevelDensity плотность атмосферы на уровне моря, кг/м^3
	SeaLevelDensity float64
	// ScaleHeight высота, на которой плотность падает в e раз, м
	ScaleHeight float64
}

// DefaultBody возвращает центральное тело по умолчанию (параметры близки к Кербину)
func DefaultBody() *CelestialBody {
	return &CelestialBody{
		Name:            "Kerbin",
		GM:              3.5316e12,
		Radius:          600000.0,
		AtmoHeight:      70000.0,
		SeaLevelDensity: 1.225,
		ScaleHeight:     5600.0,
	}
}

// AltitudeOf возвращает высоту над поверхностью для расстояния r от центра
func (b *CelestialBody) AltitudeOf(r float64) float64 {
	return r - b.Radius
}
