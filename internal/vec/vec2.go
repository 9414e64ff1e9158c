package vec

import "math"

// ChunkSize размер чанка по горизонтали в блоках.
const ChunkSize = 32

// Vec2 представляет координаты чанка (p, q)
type Vec2 struct {
	X, Y int
}

// ChunkOf возвращает координаты чанка, содержащего блок с мировыми
// координатами x, z.
func ChunkOf(x, z int) Vec2 {
	return Vec2{X: floorDiv(x, ChunkSize), Y: floorDiv(z, ChunkSize)}
}

// DistanceTo вычисляет расстояние до другого чанка
func (v Vec2) DistanceTo(other Vec2) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// floorDiv целочисленное деление с округлением вниз (для отрицательных координат)
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
