package horizon

// Direction is the sign of a load trend.
type Direction string

const (
	TrendUp           Direction = "up"
	TrendDown         Direction = "down"
	TrendFlat         Direction = "flat"
	TrendUndetermined Direction = "undetermined"
)

// Trend compares the load of a horizon with the preceding one of equal
// length. Change is the relative difference; it is nil when the previous
// load is zero.
type Trend struct {
	Direction Direction `json:"direction"`
	Current   *float64  `json:"current,omitempty"`
	Previous  *float64  `json:"previous,omitempty"`
	Change    *float64  `json:"change,omitempty"`
	Reason    string    `json:"undetermined_reason,omitempty"`
}

func (e *Engine) trend(cur, prev LoadStats) Trend {
	t := Trend{Current: cur.Total, Previous: prev.Total}
	switch {
	case cur.Total == nil:
		t.Direction, t.Reason = TrendUndetermined, "current load undetermined"
		return t
	case prev.Total == nil:
		t.Direction, t.Reason = TrendUndetermined, "previous load undetermined"
		return t
	}
	c, p := *cur.Total, *prev.Total
	if p == 0 {
		t.Direction = TrendFlat
		if c > 0 {
			t.Direction = TrendUp
		}
		return t
	}
	rel := (c - p) / p
	t.Change = &rel
	switch {
	case rel > e.threshold:
		t.Direction = TrendUp
	case rel < -e.threshold:
		t.Direction = TrendDown
	default:
		t.Direction = TrendFlat
	}
	return t
}
