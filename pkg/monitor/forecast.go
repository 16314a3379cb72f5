package monitor

import (
	"math"
	"time"

	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
)

// ForecastMinSamples is the history size below which Forecast returns
// no predictions.
const ForecastMinSamples = 24

// Prediction is one forecast point with its 95% confidence band.
type Prediction struct {
	Value float64 `json:"value"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Forecast projects the resource's usage for the next horizonHours
// hourly offsets using ordinary least squares over hours since the
// first sample. The confidence band is ±1.96 times the standard
// deviation of the fit residuals, not of the forecasts themselves.
// Returns nil when the history is under-sampled or degenerate.
func (m *Monitor) Forecast(resourceID string, horizonHours int) []Prediction {
	if horizonHours <= 0 {
		return nil
	}
	m.mu.Lock()
	res, ok := m.resources[resourceID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	history := append([]models.UsagePoint(nil), res.History...)
	m.mu.Unlock()

	if len(history) < ForecastMinSamples {
		return nil
	}

	first := history[0].Timestamp
	xs := make([]float64, len(history))
	ys := make([]float64, len(history))
	for i, p := range history {
		xs[i] = p.Timestamp.Sub(first).Hours()
		ys[i] = p.Used
	}

	alpha, beta, ok := fitLine(xs, ys)
	if !ok {
		return nil
	}

	var residualSS float64
	for i := range xs {
		r := ys[i] - (alpha + beta*xs[i])
		residualSS += r * r
	}
	sigma := math.Sqrt(residualSS / float64(len(xs)-2))
	band := 1.96 * sigma

	nowHours := time.Now().UTC().Sub(first).Hours()
	out := make([]Prediction, 0, horizonHours)
	for i := 1; i <= horizonHours; i++ {
		v := alpha + beta*(nowHours+float64(i))
		out = append(out, Prediction{Value: v, Lower: v - band, Upper: v + band})
	}
	return out
}

// fitLine computes the OLS intercept and slope. It reports failure when
// x has no variance, where no line can be fit.
func fitLine(xs, ys []float64) (alpha, beta float64, ok bool) {
	n := float64(len(xs))
	var sumX, sumY, sumXX, sumXY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXX += xs[i] * xs[i]
		sumXY += xs[i] * ys[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0, false
	}
	beta = (n*sumXY - sumX*sumY) / denom
	alpha = (sumY - beta*sumX) / n
	return alpha, beta, true
}
