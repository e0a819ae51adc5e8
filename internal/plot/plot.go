// Package plot renders training curves to image files.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/born-ml/born-mnist/internal/metrics"
)

// File names written by Curves.
const (
	LossFile     = "train_loss.png"
	AccuracyFile = "train_accuracy.png"
)

const (
	width  = 8 * vg.Inch
	height = 4 * vg.Inch

	// smoothPoints is roughly how many points the trailing mean spans.
	smoothPoints = 50
)

// Curves writes the per-step loss and accuracy of h into dir and returns
// the written paths. Each chart overlays a trailing mean once the history
// is long enough for one.
func Curves(h *metrics.History, dir string) ([]string, error) {
	if h.Steps() == 0 {
		return nil, errors.New("plot: empty history")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("plot: create dir: %w", err)
	}

	curves := []struct {
		file, title, ylabel string
		ys                  []float64
	}{
		{LossFile, "Training loss", "loss", h.Loss()},
		{AccuracyFile, "Training accuracy", "accuracy (%)", h.Accuracy()},
	}

	paths := make([]string, 0, len(curves))
	for _, c := range curves {
		path := filepath.Join(dir, c.file)
		if err := Line(path, c.title, "step", c.ylabel, c.ys, smoothWindow(len(c.ys))); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func smoothWindow(n int) int {
	return n / smoothPoints
}

// Line saves ys against their index as a line chart. With window > 1 a
// trailing mean over window steps is drawn on top. The format is chosen
// from the file extension.
func Line(path, title, xlabel, ylabel string, ys []float64, window int) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(series(ys))
	if err != nil {
		return fmt.Errorf("plot %s: %w", title, err)
	}
	p.Add(line)

	if window > 1 {
		smooth, err := plotter.NewLine(series(metrics.MovingAverage(ys, window)))
		if err != nil {
			return fmt.Errorf("plot %s: %w", title, err)
		}
		smooth.Color = color.RGBA{R: 220, A: 255}
		smooth.Width = vg.Points(1.5)
		p.Add(smooth)
		p.Legend.Add("step", line)
		p.Legend.Add(fmt.Sprintf("mean of %d", window), smooth)
		p.Legend.Top = true
	}

	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("plot: save %s: %w", path, err)
	}
	return nil
}

func series(ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(ys))
	for i, y := range ys {
		pts[i].X = float64(i)
		pts[i].Y = y
	}
	return pts
}
