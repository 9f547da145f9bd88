package analytics

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"sort"

	"erp-backend/internal/models"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var seriesColor = drawing.Color{R: 54, G: 162, B: 235, A: 255}

// charts renders every chart it has data for. A chart that fails to render
// is logged and left out; the others are still returned.
func (e *Engine) charts(ds *dataset) Charts {
	out := Charts{}

	pie := []chart.Value{
		{Label: "Installation", Value: ds.revenueByType(models.BusinessInstallation)},
		{Label: "Manufacturing", Value: ds.revenueByType(models.BusinessManufacturing)},
	}
	// go-chart refuses a pie whose values are all zero.
	if pc, ok := revenuePie(pie); ok {
		if uri, err := renderChart(func(w io.Writer) error {
			return pc.Render(chart.PNG, w)
		}); err != nil {
			e.log.Error().Err(err).Str("chart", "revenue_distribution").Msg("chart rendering failed")
		} else {
			out["revenue_distribution"] = uri
		}
	}

	monthly := ds.monthlyRevenue()
	if len(monthly) > 0 {
		months := make([]string, 0, len(monthly))
		for m := range monthly {
			months = append(months, m)
		}
		sort.Strings(months)
		if len(months) > chartMonths {
			months = months[len(months)-chartMonths:]
		}
		revenue := make([]float64, len(months))
		for i, m := range months {
			revenue[i] = monthly[m]
		}
		if uri, err := renderChart(func(w io.Writer) error {
			return monthlyLine(months, revenue).Render(chart.PNG, w)
		}); err != nil {
			e.log.Error().Err(err).Str("chart", "monthly_trends").Msg("chart rendering failed")
		} else {
			out["monthly_trends"] = uri
		}
	}
	return out
}

// renderChart runs render into a buffer and returns the PNG as a data URI.
// A panic inside the chart library comes back as an error.
func renderChart(render func(w io.Writer) error) (uri string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chart panic: %v", r)
		}
	}()

	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func revenuePie(values []chart.Value) (chart.PieChart, bool) {
	var total float64
	for _, v := range values {
		total += v.Value
	}
	if total <= 0 {
		return chart.PieChart{}, false
	}
	for i := range values {
		values[i].Label = fmt.Sprintf("%s %.1f%%", values[i].Label, values[i].Value/total*100)
	}
	return chart.PieChart{
		Title:  "Revenue Distribution by Project Type",
		Width:  480,
		Height: 320,
		Values: values,
	}, true
}

// monthlyLine plots revenue per month. The axis ranges are fixed up front so
// a single month or a flat series still has a non-zero extent.
func monthlyLine(months []string, revenue []float64) chart.Chart {
	xs := make([]float64, len(months))
	ticks := make([]chart.Tick, len(months))
	var peak float64
	for i, m := range months {
		xs[i] = float64(i)
		ticks[i] = chart.Tick{Value: float64(i), Label: shortMonth(m)}
		peak = math.Max(peak, revenue[i])
	}
	if peak == 0 {
		peak = 1
	}

	return chart.Chart{
		Title:  "Monthly Revenue Trends",
		Width:  640,
		Height: 320,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Range: &chart.ContinuousRange{Min: -0.5, Max: float64(len(months)) - 0.5},
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: peak * 1.1},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Revenue",
				XValues: xs,
				YValues: revenue,
				Style: chart.Style{
					StrokeColor: seriesColor,
					StrokeWidth: 2,
					DotColor:    seriesColor,
					DotWidth:    3,
				},
			},
		},
	}
}

// shortMonth turns "2026-03" into "03/26".
func shortMonth(month string) string {
	if len(month) != 7 {
		return month
	}
	return month[5:] + "/" + month[2:4]
}
