package geoview

import (
	"math"

	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/twpayne/go-geom"
)

// Viewport defaults, matching the original dashboard map.
const (
	DefaultZoom = 7
	MinZoom     = 1
	MaxZoom     = 18

	// FitPadding is the fraction of the alert extent added on every side.
	FitPadding = 0.1

	tileSize = 256.0

	// minSpan keeps a single alert from fitting to an infinitely small box.
	minSpan = 0.01
)

// DefaultCenter is the initial map center.
var DefaultCenter = domain.Position{Lat: 10.85, Lon: 78.43}

// Bounds is a geographic bounding box.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Contains reports whether p lies inside the box.
func (b Bounds) Contains(p domain.Position) bool {
	return p.Lat >= b.South && p.Lat <= b.North && p.Lon >= b.West && p.Lon <= b.East
}

// Viewport is the visible map area.
type Viewport struct {
	Center domain.Position `json:"center"`
	Zoom   int             `json:"zoom"`
}

// DefaultViewport returns the initial viewport.
func DefaultViewport() Viewport {
	return Viewport{Center: DefaultCenter, Zoom: DefaultZoom}
}

// extent returns the bounding box of the alert positions.
func extent(alerts []domain.Alert) Bounds {
	flat := make([]float64, 0, 2*len(alerts))
	for _, a := range alerts {
		flat = append(flat, a.Position.Lon, a.Position.Lat)
	}
	b := geom.NewMultiPointFlat(geom.XY, flat).Bounds()
	return Bounds{South: b.Min(1), West: b.Min(0), North: b.Max(1), East: b.Max(0)}
}

// pad grows b by FitPadding of its span on every side, within the valid
// latitude and longitude range. Projection clamps to maxLat later.
func pad(b Bounds) Bounds {
	dLat := math.Max(b.North-b.South, minSpan) * FitPadding
	dLon := math.Max(b.East-b.West, minSpan) * FitPadding
	if b.North-b.South < minSpan {
		mid := (b.North + b.South) / 2
		b.South, b.North = mid-minSpan/2, mid+minSpan/2
	}
	if b.East-b.West < minSpan {
		mid := (b.East + b.West) / 2
		b.West, b.East = mid-minSpan/2, mid+minSpan/2
	}
	return Bounds{
		South: math.Max(b.South-dLat, -90),
		West:  math.Max(b.West-dLon, -180),
		North: math.Min(b.North+dLat, 90),
		East:  math.Min(b.East+dLon, 180),
	}
}

// fit returns the viewport that shows b on a width x height pixel map.
func fit(b Bounds, width, height int) Viewport {
	x0, x1 := mercX(b.West), mercX(b.East)
	y0, y1 := mercY(b.North), mercY(b.South)

	zoomX := math.Log2(float64(width) / (tileSize * math.Max(x1-x0, 1e-12)))
	zoomY := math.Log2(float64(height) / (tileSize * math.Max(y1-y0, 1e-12)))

	return Viewport{
		Center: domain.Position{
			Lat: invMercY((y0 + y1) / 2),
			Lon: invMercX((x0 + x1) / 2),
		},
		Zoom: clampZoom(int(math.Floor(math.Min(zoomX, zoomY)))),
	}
}

// visible returns the box a viewport covers on a width x height map.
func visible(v Viewport, width, height int) Bounds {
	scale := tileSize * math.Exp2(float64(v.Zoom))
	cx, cy := mercX(v.Center.Lon), mercY(v.Center.Lat)
	hw, hh := float64(width)/(2*scale), float64(height)/(2*scale)

	return Bounds{
		South: invMercY(math.Min(cy+hh, 1)),
		West:  invMercX(math.Max(cx-hw, 0)),
		North: invMercY(math.Max(cy-hh, 0)),
		East:  invMercX(math.Min(cx+hw, 1)),
	}
}

func clampZoom(z int) int {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

// Web Mercator in unit coordinates: x and y in [0, 1], y growing south.
// Latitudes beyond ±maxLat project onto the map edge.

const maxLat = 85.05112878

func mercX(lon float64) float64 {
	return (lon + 180) / 360
}

func mercY(lat float64) float64 {
	lat = math.Max(math.Min(lat, maxLat), -maxLat)
	s := math.Sin(lat * math.Pi / 180)
	return 0.5 - math.Log((1+s)/(1-s))/(4*math.Pi)
}

func invMercX(x float64) float64 {
	return x*360 - 180
}

func invMercY(y float64) float64 {
	n := math.Pi - 2*math.Pi*y
	return 180 / math.Pi * math.Atan(math.Sinh(n))
}
