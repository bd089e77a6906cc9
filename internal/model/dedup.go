package model

import "time"

// DedupRule decides whether an inbound record is already stored.
// A zero Tolerance only compares address and body.
type DedupRule struct {
	Tolerance time.Duration
}

func Relaxed() DedupRule {
	return DedupRule{}
}

func Strict(tolerance time.Duration) DedupRule {
	return DedupRule{Tolerance: tolerance}
}

func (r DedupRule) IsRelaxed() bool {
	return r.Tolerance <= 0
}

func (r DedupRule) Matches(existing Message, rec InboundRecord) bool {
	if existing.Address != rec.Sender || existing.Body != rec.Body {
		return false
	}
	if r.IsRelaxed() {
		return true
	}
	d := existing.Timestamp.Sub(rec.Time)
	if d < 0 {
		d = -d
	}
	return d < r.Tolerance
}

// For returns the rule to apply to rec: records without a provider time
// cannot be compared by time and fall back to the relaxed rule.
func (r DedupRule) For(rec InboundRecord) DedupRule {
	if !rec.HasTime {
		return Relaxed()
	}
	return r
}
