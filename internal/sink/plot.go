package sink

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	plotLineColor  = color.RGBA{R: 37, G: 150, B: 190, A: 255}
	plotMarkerShap = draw.SquareGlyph{}
)

const (
	plotW    = 6 * vg.Inch
	plotH    = 4 * vg.Inch
	maxTicks = 10
)

// WriteDiagnosticPlot renders the fraction of sites ConstantSiteFilter
// retained in each replicate of a multi-dataset run, one point per
// replicate index.
func WriteDiagnosticPlot(retainedFraction []float64, prefix string) error {
	p := plot.New()
	p.X.Label.Text = "Replicate"
	p.Y.Label.Text = "Retained Site Fraction (%)"
	p.X.Min = 0
	p.X.Max = float64(len(retainedFraction))
	p.X.Tick.Marker = plot.TickerFunc(func(_, max float64) []plot.Tick {
		step := 1
		if int(max) > maxTicks {
			step = int(math.Ceil(max / maxTicks))
		}
		ticks := make([]plot.Tick, 0, int(max)/step+2)
		for i := range int(max) + 1 {
			if i%step == 0 {
				ticks = append(ticks, plot.Tick{Value: float64(i), Label: fmt.Sprintf("%d", i)})
			} else {
				ticks = append(ticks, plot.Tick{Value: float64(i)})
			}
		}
		return ticks
	})
	p.Y.Min = 0
	p.Y.Max = 100

	pts := make(plotter.XYs, len(retainedFraction))
	for i, frac := range retainedFraction {
		pts[i].X = float64(i + 1)
		pts[i].Y = frac * 100
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Color = plotLineColor
	line.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
	points.Color = plotLineColor
	points.Shape = plotMarkerShap
	points.Radius = vg.Points(4)
	p.Add(line, points)
	return p.Save(plotW, plotH, fmt.Sprintf("%s.png", prefix))
}
