// Package charts renders spending breakdowns as PNG images.
package charts

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"

	"ledgerbot/internal/core"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// barLabel identifies a bar by its position in the text summary plus the
// amount. The bundled chart font has no CJK glyphs, so category names cannot
// be drawn on the image itself.
func barLabel(pos int, total int64) string {
	return fmt.Sprintf("#%d %d", pos, total)
}

// CategoryBar renders one bar per category, in the order given. Returns nil
// bytes when there is nothing to draw.
func (g *Generator) CategoryBar(totals []core.CategoryTotal) ([]byte, error) {
	if len(totals) == 0 {
		return nil, nil
	}

	bars := make([]chart.Value, 0, len(totals))
	for i, ct := range totals {
		bars = append(bars, chart.Value{
			Label: barLabel(i+1, ct.Total),
			Value: float64(ct.Total),
			Style: chart.Style{
				StrokeColor: chart.ColorBlue,
				FillColor:   chart.ColorBlue.WithAlpha(180),
				FontSize:    12,
				FontColor:   chart.ColorBlack,
			},
		})
	}

	graph := chart.BarChart{
		Width:    800,
		Height:   500,
		BarWidth: 60,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.0f", v.(float64))
			},
			Style: chart.Style{
				FontSize:  12,
				FontColor: chart.ColorBlack,
			},
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render category chart: %w", err)
	}

	return buffer.Bytes(), nil
}
