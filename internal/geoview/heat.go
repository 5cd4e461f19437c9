package geoview

import (
	"fmt"
	"math"
	"strconv"

	"github.com/opensource-finance/cipher/internal/domain"
)

// Heat intensity range.
const (
	MinIntensity = 0.3
	MaxIntensity = 1.0

	// heatRadius is the kernel radius in screen pixels.
	heatRadius = 25.0
)

// HeatPoint is one weighted sample of the density surface.
type HeatPoint struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Intensity float64 `json:"intensity"`
}

// Intensity maps a normalized risk score onto the heat scale.
func Intensity(scoreNorm float64) float64 {
	return math.Max(MinIntensity, math.Min(MaxIntensity, MinIntensity+0.7*scoreNorm))
}

// GradientStop is a color at a position in [0, 1].
type GradientStop struct {
	Offset float64 `json:"offset"`
	Color  string  `json:"color"`
}

// Gradient is an ordered color ramp.
type Gradient []GradientStop

// HeatGradient runs from green (low) to red (high).
var HeatGradient = Gradient{
	{0.0, "#22c55e"},
	{0.25, "#a3e635"},
	{0.5, "#facc15"},
	{0.75, "#f97316"},
	{1.0, "#dc2626"},
}

// ColorAt interpolates the ramp at v, clamped to [0, 1].
func (g Gradient) ColorAt(v float64) string {
	if len(g) == 0 {
		return ""
	}
	v = math.Max(0, math.Min(1, v))
	if v <= g[0].Offset {
		return g[0].Color
	}
	for i := 1; i < len(g); i++ {
		lo, hi := g[i-1], g[i]
		if v > hi.Offset {
			continue
		}
		t := (v - lo.Offset) / (hi.Offset - lo.Offset)
		return mix(lo.Color, hi.Color, t)
	}
	return g[len(g)-1].Color
}

func mix(a, b string, t float64) string {
	ar, ag, ab := rgb(a)
	br, bg, bb := rgb(b)
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return fmt.Sprintf("#%02x%02x%02x", lerp(ar, br), lerp(ag, bg), lerp(ab, bb))
}

func rgb(hex string) (r, g, b uint8) {
	if len(hex) != 7 || hex[0] != '#' {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}

// heatPoints converts alerts into weighted samples.
func heatPoints(alerts []domain.Alert) []HeatPoint {
	out := make([]HeatPoint, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, HeatPoint{
			Lat:       a.Position.Lat,
			Lon:       a.Position.Lon,
			Intensity: Intensity(a.RiskScoreNorm),
		})
	}
	return out
}

// Surface is a rasterized density grid over Bounds. Values[row][col] is in
// [0, 1]; row 0 is the northern edge.
type Surface struct {
	Bounds Bounds      `json:"bounds"`
	Cols   int         `json:"cols"`
	Rows   int         `json:"rows"`
	Values [][]float64 `json:"values"`
}

// rasterize sums a Gaussian kernel per point at each cell center, in
// screen space for viewport v, then scales the grid so its peak is the
// highest point intensity.
func rasterize(points []HeatPoint, v Viewport, width, height, cols, rows int) Surface {
	b := visible(v, width, height)
	s := Surface{Bounds: b, Cols: cols, Rows: rows, Values: make([][]float64, rows)}

	scale := tileSize * math.Exp2(float64(v.Zoom))
	sigma := heatRadius / 2
	twoSigma2 := 2 * sigma * sigma

	px := make([]float64, len(points))
	py := make([]float64, len(points))
	peak := 0.0
	for i, p := range points {
		px[i] = mercX(p.Lon) * scale
		py[i] = mercY(p.Lat) * scale
		peak = math.Max(peak, p.Intensity)
	}

	x0, x1 := mercX(b.West)*scale, mercX(b.East)*scale
	y0, y1 := mercY(b.North)*scale, mercY(b.South)*scale

	top := 0.0
	for r := 0; r < rows; r++ {
		s.Values[r] = make([]float64, cols)
		cy := y0 + (float64(r)+0.5)*(y1-y0)/float64(rows)
		for c := 0; c < cols; c++ {
			cx := x0 + (float64(c)+0.5)*(x1-x0)/float64(cols)
			sum := 0.0
			for i, p := range points {
				dx, dy := cx-px[i], cy-py[i]
				sum += p.Intensity * math.Exp(-(dx*dx+dy*dy)/twoSigma2)
			}
			s.Values[r][c] = sum
			top = math.Max(top, sum)
		}
	}

	if top > 0 {
		k := peak / top
		for r := range s.Values {
			for c := range s.Values[r] {
				s.Values[r][c] *= k
			}
		}
	}
	return s
}
