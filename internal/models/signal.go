package models

import "time"

type Direction string

const (
	DirectionNone  Direction = ""
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Sign: +1 для LONG, -1 для SHORT. Удобно для расчёта PnL и сравнения цен.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Signal — входной торговый сигнал от скорера. Immutable после выпуска.
type Signal struct {
	Symbol      string
	Direction   Direction
	Score       float64 // 0..100
	Leverage    int
	TotalMargin float64 // сколько маржи выделено под всю позицию
	Components  map[string]float64
	IssuedAt    time.Time
}

type PosKey struct {
	Symbol    string
	Direction Direction
}

func (s Signal) Key() PosKey {
	return PosKey{Symbol: s.Symbol, Direction: s.Direction}
}
