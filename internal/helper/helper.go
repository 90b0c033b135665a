package helper

import "math"

// RoundDownToTick прижимает цену вниз к сетке тика биржи.
func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}

// RoundUpToTick прижимает цену вверх к сетке тика биржи.
func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick - 1e-12)
	return steps * tick
}

// RoundToLot режет количество вниз к лотности инструмента.
// Хвост меньше шага биржа всё равно отвергнет.
func RoundToLot(qty, lot float64) float64 {
	return RoundDownToTick(qty, lot)
}
