package prayer

import (
	"math"
	"testing"
)

func TestQiblaBearing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		at       Coordinates
		want     float64
		wantWind string
	}{
		{name: "istanbul", at: Coordinates{41.0082, 28.9784}, want: 151.62, wantWind: "SSE"},
		{name: "new york", at: Coordinates{40.7128, -74.0060}, want: 58.48, wantWind: "ENE"},
		{name: "jakarta", at: Coordinates{-6.2088, 106.8456}, want: 295.15, wantWind: "WNW"},
		{name: "london", at: Coordinates{51.5074, -0.1278}, want: 118.99, wantWind: "ESE"},
		{name: "cape town", at: Coordinates{-33.9249, 18.4241}, want: 23.35, wantWind: "NNE"},
		{name: "medina", at: Coordinates{24.4672, 39.6112}, want: 176.24, wantWind: "S"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := QiblaBearing(tt.at.Latitude, tt.at.Longitude)
			if math.Abs(got-tt.want) > 0.01 {
				t.Fatalf("QiblaBearing(%v) = %.4f, want %.2f", tt.at, got, tt.want)
			}
			if w := CompassPoint(got); w != tt.wantWind {
				t.Fatalf("CompassPoint(%.2f) = %s, want %s", got, w, tt.wantWind)
			}
		})
	}
}

func TestQiblaBearingRange(t *testing.T) {
	t.Parallel()
	for lat := -89.0; lat <= 89; lat += 7 {
		for lon := -179.0; lon <= 179; lon += 11 {
			b := QiblaBearing(lat, lon)
			if b < 0 || b >= 360 || math.IsNaN(b) {
				t.Fatalf("QiblaBearing(%v, %v) = %v out of range", lat, lon, b)
			}
		}
	}
}

func TestCompassPoint(t *testing.T) {
	t.Parallel()
	cases := map[float64]string{
		0: "N", 11.2: "N", 11.3: "NNE", 90: "E", 180: "S", 270: "W",
		348.7: "NNW", 348.8: "N", 359.9: "N", 360: "N", -45: "NW", 405: "NE",
	}
	for in, want := range cases {
		if got := CompassPoint(in); got != want {
			t.Errorf("CompassPoint(%v) = %s, want %s", in, got, want)
		}
	}
}

func TestCoordinates(t *testing.T) {
	t.Parallel()
	c := Coordinates{Latitude: -33.9249, Longitude: 18.4241}
	if !c.Valid() {
		t.Fatalf("%v should be valid", c)
	}
	if got, want := c.String(), "33.9249°S, 18.4241°E"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if (Coordinates{Latitude: 91}).Valid() {
		t.Fatal("latitude 91 should be invalid")
	}
	if (Coordinates{Longitude: math.NaN()}).Valid() {
		t.Fatal("NaN longitude should be invalid")
	}
}
