package sla

import "math"

// Counts are the raw observations for one supplier over the window.
type Counts struct {
	Total     int
	Delivered int
	OnTime    int
	Cancelled int
	Returned  int
	Disputed  int
}

// Rates are the normalised metrics derived from Counts.
type Rates struct {
	Fulfillment  float64
	OnTime       float64
	Cancellation float64
	Return       float64
	Satisfaction float64
}

func (c Counts) Rates() Rates {
	if c.Total == 0 {
		return Rates{}
	}

	total := float64(c.Total)
	r := Rates{
		Fulfillment:  float64(c.Delivered) / total,
		Cancellation: float64(c.Cancelled) / total,
		Return:       float64(c.Returned) / total,
		Satisfaction: math.Max(0, 1-0.5*float64(c.Disputed)/total),
	}
	if c.Delivered > 0 {
		r.OnTime = float64(c.OnTime) / float64(c.Delivered)
	}
	return r
}

// Score is the weighted composite on a 0-100 scale, rounded to 2 decimals.
func (r Rates) Score() float64 {
	s := 0.30*r.Fulfillment +
		0.25*r.OnTime +
		0.20*(1-r.Cancellation) +
		0.15*(1-r.Return) +
		0.10*r.Satisfaction
	return math.Round(s*100*100) / 100
}

func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}
