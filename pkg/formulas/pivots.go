package formulas

// PivotPoints holds the classic floor-trader pivot levels derived from the
// prior day's high, low, and close.
type PivotPoints struct {
	Pivot float64
	R1    float64
	R2    float64
	R3    float64
	S1    float64
	S2    float64
	S3    float64
}

// CalculatePivotPoints computes classic pivot levels:
//
//	P  = (H + L + C) / 3
//	R1 = 2P - L       S1 = 2P - H
//	R2 = P + (H - L)  S2 = P - (H - L)
//	R3 = H + 2(P - L) S3 = L - 2(H - P)
func CalculatePivotPoints(high, low, close float64) *PivotPoints {
	p := (high + low + close) / 3
	r := high - low

	return &PivotPoints{
		Pivot: p,
		R1:    2*p - low,
		R2:    p + r,
		R3:    high + 2*(p-low),
		S1:    2*p - high,
		S2:    p - r,
		S3:    low - 2*(high-p),
	}
}
