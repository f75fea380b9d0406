package core

import (
	"testing"

	"github.com/beatsync/server/internal/domain"
)

func TestGain_FullInsideNearRadius(t *testing.T) {
	client := domain.Position{X: 50, Y: 50}
	source := domain.Position{X: 55, Y: 50}
	if g := Gain(client, source); g != domain.AudioHigh {
		t.Fatalf("got %v, want %v", g, domain.AudioHigh)
	}
}

func TestGain_FloorBeyondFarRadius(t *testing.T) {
	client := domain.Position{X: 0, Y: 0}
	source := domain.Position{X: 100, Y: 100}
	if g := Gain(client, source); g != domain.AudioLow {
		t.Fatalf("got %v, want %v", g, domain.AudioLow)
	}
}

func TestGain_LinearRampBetweenRadii(t *testing.T) {
	client := domain.Position{X: 50, Y: 0}
	source := domain.Position{X: 50, Y: 50} // distance 50, midway between 20 and 80
	got := Gain(client, source)
	want := domain.AudioHigh - 0.5*(domain.AudioHigh-domain.AudioLow)
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestGain_Monotonic(t *testing.T) {
	source := domain.Position{X: 50, Y: 50}
	prev := Gain(domain.Position{X: 50, Y: 50}, source)
	for d := 5.0; d <= 100; d += 5 {
		g := Gain(domain.Position{X: 50 + d, Y: 50}, source)
		if g > prev {
			t.Fatalf("gain increased with distance: prev=%v at d-5, got=%v at d=%v", prev, g, d)
		}
		prev = g
	}
}
