package core

import "github.com/beatsync/server/internal/domain"

// Near and far radii bound the smooth linear ramp between
// domain.AudioHigh and domain.AudioLow: at or inside nearRadius a
// client gets full gain, at or beyond farRadius it gets the floor,
// and the ramp between is linear so a moving source never produces
// an audible pop.
const (
	nearRadius = 20.0
	farRadius  = 80.0
)

// Gain computes the mixing coefficient for a client at clientPos given
// a listening source at sourcePos: monotone non-increasing in
// distance, clamped to [AudioLow, AudioHigh].
func Gain(clientPos, sourcePos domain.Position) float64 {
	d := clientPos.Distance(sourcePos)
	switch {
	case d <= nearRadius:
		return domain.AudioHigh
	case d >= farRadius:
		return domain.AudioLow
	default:
		t := (d - nearRadius) / (farRadius - nearRadius)
		return domain.AudioHigh - t*(domain.AudioHigh-domain.AudioLow)
	}
}
