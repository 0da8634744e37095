// Package vecmath 向量運算小工具
package vecmath

import "math"

// Float 支援的元素型別
type Float interface {
	~float32 | ~float64
}

// Norm L2 範數
func Norm[T Float](v []T) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// IsZero 是否為全零向量
func IsZero[T Float](v []T) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Cosine 餘弦相似度；長度不同或任一為零向量時 ok 為 false
func Cosine[T Float](a, b []T) (sim float64, ok bool) {
	if len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return clamp(dot / (math.Sqrt(na) * math.Sqrt(nb))), true
}

// CosineDistance 1 - 餘弦相似度，零向量視為距離 1
func CosineDistance[T Float](a, b []T) float64 {
	sim, ok := Cosine(a, b)
	if !ok {
		return 1
	}
	return 1 - sim
}

// Normalize 原地 L2 正規化，零向量不變
func Normalize[T Float](v []T) {
	n := Norm(v)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] = T(float64(v[i]) / n)
	}
}

// 浮點誤差可能讓結果略超出 [-1, 1]
func clamp(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
