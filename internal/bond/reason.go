package bond

// FilterReason explains why an instrument was excluded from a cycle without
// an error being raised. The empty reason means the instrument passed.
type FilterReason string

const (
	ReasonNone           FilterReason = ""
	ReasonQualifiedOnly  FilterReason = "qualified_investors_only"
	ReasonMaturityWindow FilterReason = "maturity_window"
	ReasonZeroPrice      FilterReason = "zero_price"
)

// Filtered reports whether r marks an excluded instrument.
func (r FilterReason) Filtered() bool {
	return r != ReasonNone
}

func (r FilterReason) String() string {
	if r == ReasonNone {
		return "none"
	}
	return string(r)
}
