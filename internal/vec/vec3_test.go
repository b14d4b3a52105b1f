package vec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec3Add(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: -1, Y: 0.5, Z: 2}

	sum := a.Add(b)
	assert.Equal(t, Vec3{X: 0, Y: 2.5, Z: 5}, sum)
}

func TestVec3CrossOrthogonality(t *testing.T) {
	// Векторное произведение перпендикулярно обоим сомножителям
	a := Vec3{X: 3, Y: -2, Z: 7}
	b := Vec3{X: 1, Y: 4, Z: -1}

	c := a.Cross(b)
	assert.InDelta(t, 0, c.Dot(a), 1e-12)
	assert.InDelta(t, 0, c.Dot(b), 1e-12)
}

func TestVec3Normalize(t *testing.T) {
	v := Vec3{X: 3, Y: 4, Z: 0}

	n := v.Normalize()
	assert.InDelta(t, 1.0, n.Length(), 1e-12)
	assert.InDelta(t, 0.6, n.X, 1e-12)
	assert.InDelta(t, 0.8, n.Y, 1e-12)
}

func TestVec3NormalizeZero(t *testing.T) {
	// Нормализация нулевого вектора не должна давать NaN
	n := Zero().Normalize()
	assert.True(t, n.IsZero())
	assert.True(t, n.IsFinite())
}

func TestVec3DistanceTo(t *testing.T) {
	a := Vec3{X: 1, Y: 1, Z: 1}
	b := Vec3{X: 4, Y: 5, Z: 1}
	assert.InDelta(t, 5.0, a.DistanceTo(b), 1e-12)
}

func TestVec3IsFinite(t *testing.T) {
	assert.True(t, Vec3{X: 1, Y: 2, Z: 3}.IsFinite())
	assert.False(t, Vec3{X: math.NaN()}.IsFinite())
	assert.False(t, Vec3{Z: math.Inf(1)}.IsFinite())
}

func TestVec3ApproxEquals(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 1 + 1e-10, Y: 2, Z: 3 - 1e-10}

	assert.True(t, a.ApproxEquals(b, 1e-9))
	assert.False(t, a.ApproxEquals(b, 1e-12))
}
