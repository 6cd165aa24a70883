package fundamentals

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/nightshift/internal/domain"
)

// Display caps. Extreme values are clamped so outliers do not pollute
// aggregates built over the universe.
const (
	maxPE       = 999
	maxPS       = 50
	maxEVEBITDA = 50
)

// Altman Z zone boundaries.
const (
	AltmanSafeFloor     = 2.99
	AltmanDistressFloor = 1.81
)

// RatioInputs is everything the ratio calculator consumes: the statement
// history (most recent first) and today's price.
type RatioInputs struct {
	Ticker   string
	Date     time.Time
	Price    float64
	Quarters []domain.Fundamentals
	Annuals  []domain.Fundamentals
}

// ttm holds trailing-twelve-month flow figures plus the balance snapshot
// they pair with.
type ttm struct {
	revenue         *float64
	costOfRevenue   *float64
	grossProfit     *float64
	operatingIncome *float64
	netIncome       *float64
	ebitda          *float64
	freeCashFlow    *float64
	interestExpense *float64

	latest  *domain.Fundamentals // balance-sheet source
	quality string
}

// buildTTM sums the four most recent quarterly rows. With fewer than four
// quarters it falls back to the most recent annual row, flagged
// quality=low.
func buildTTM(quarters, annuals []domain.Fundamentals) *ttm {
	if len(quarters) >= 4 {
		out := &ttm{latest: &quarters[0], quality: "high"}
		out.revenue = sumField(quarters[:4], func(f *domain.Fundamentals) *float64 { return f.Revenue })
		out.costOfRevenue = sumField(quarters[:4], func(f *domain.Fundamentals) *float64 { return f.CostOfRevenue })
		out.grossProfit = sumField(quarters[:4], func(f *domain.Fundamentals) *float64 { return f.GrossProfit })
		out.operatingIncome = sumField(quarters[:4], func(f *domain.Fundamentals) *float64 { return f.OperatingIncome })
		out.netIncome = sumField(quarters[:4], func(f *domain.Fundamentals) *float64 { return f.NetIncome })
		out.ebitda = sumField(quarters[:4], func(f *domain.Fundamentals) *float64 { return f.EBITDA })
		out.freeCashFlow = sumField(quarters[:4], func(f *domain.Fundamentals) *float64 { return f.FreeCashFlow })
		out.interestExpense = sumField(quarters[:4], func(f *domain.Fundamentals) *float64 { return f.InterestExpense })
		return out
	}
	if len(annuals) > 0 {
		a := &annuals[0]
		return &ttm{
			revenue:         a.Revenue,
			costOfRevenue:   a.CostOfRevenue,
			grossProfit:     a.GrossProfit,
			operatingIncome: a.OperatingIncome,
			netIncome:       a.NetIncome,
			ebitda:          a.EBITDA,
			freeCashFlow:    a.FreeCashFlow,
			interestExpense: a.InterestExpense,
			latest:          a,
			quality:         "low",
		}
	}
	return nil
}

// sumField adds a flow field across rows; nil if any row lacks it.
func sumField(rows []domain.Fundamentals, get func(*domain.Fundamentals) *float64) *float64 {
	var sum float64
	for i := range rows {
		v := get(&rows[i])
		if v == nil {
			return nil
		}
		sum += *v
	}
	return &sum
}

// ComputeRatios derives the 27-field ratio vector. A ratio with a missing
// or non-positive denominator is nil and leaves a flag explaining why.
func ComputeRatios(in RatioInputs) domain.Ratios {
	out := domain.Ratios{
		Ticker:          in.Ticker,
		CalculationDate: in.Date,
	}

	flag := func(format string, args ...interface{}) {
		out.Flags = append(out.Flags, fmt.Sprintf(format, args...))
	}

	t := buildTTM(in.Quarters, in.Annuals)
	if t == nil {
		flag("ratios: N/A - no statement data")
		return out
	}
	if t.quality == "low" {
		flag("ttm: annual fallback, quality=low")
	}

	bal := t.latest

	// Market figures come first; most of the valuation group hangs off
	// market cap.
	var marketCap *float64
	if bal.SharesOutstanding != nil && *bal.SharesOutstanding > 0 && in.Price > 0 {
		mc := in.Price * *bal.SharesOutstanding
		marketCap = &mc
		out.MarketCap = &mc
	} else {
		flag("market_cap: N/A - no shares outstanding")
	}

	var enterpriseValue *float64
	if marketCap != nil && bal.TotalDebt != nil && bal.Cash != nil {
		ev := *marketCap + *bal.TotalDebt - *bal.Cash
		enterpriseValue = &ev
		out.EnterpriseValue = &ev
	}

	// Valuation.
	if marketCap != nil {
		if t.netIncome != nil && *t.netIncome > 0 {
			out.PE = capped(*marketCap / *t.netIncome, maxPE)
		} else {
			flag("pe: N/A - negative earnings")
		}
		if bal.TotalEquity != nil && *bal.TotalEquity > 0 {
			pb := *marketCap / *bal.TotalEquity
			out.PB = &pb
		} else {
			flag("pb: N/A - negative book value")
		}
		if t.revenue != nil && *t.revenue > 0 {
			out.PS = capped(*marketCap / *t.revenue, maxPS)
		} else {
			flag("ps: N/A - no revenue")
		}
	}
	if enterpriseValue != nil {
		if t.ebitda != nil && *t.ebitda > 0 {
			out.EVEBITDA = capped(*enterpriseValue / *t.ebitda, maxEVEBITDA)
		} else {
			flag("ev_ebitda: N/A - negative ebitda")
		}
	}

	// Profitability.
	if t.netIncome != nil {
		out.ROE = ratio(*t.netIncome, bal.TotalEquity)
		out.ROA = ratio(*t.netIncome, bal.TotalAssets)
	}
	if t.operatingIncome != nil {
		// NOPAT over invested capital, flat 21% tax assumption.
		if bal.TotalDebt != nil && bal.TotalEquity != nil && *bal.TotalDebt+*bal.TotalEquity > 0 {
			roic := *t.operatingIncome * (1 - 0.21) / (*bal.TotalDebt + *bal.TotalEquity)
			out.ROIC = &roic
		}
	}
	if t.revenue != nil && *t.revenue > 0 {
		if t.grossProfit != nil {
			gm := *t.grossProfit / *t.revenue
			out.GrossMargin = &gm
		}
		if t.operatingIncome != nil {
			om := *t.operatingIncome / *t.revenue
			out.OperatingMargin = &om
		}
		if t.netIncome != nil {
			nm := *t.netIncome / *t.revenue
			out.NetMargin = &nm
		}
	} else {
		flag("margins: N/A - no revenue")
	}

	// Financial health.
	if bal.TotalDebt != nil {
		out.DebtToEquity = ratio(*bal.TotalDebt, bal.TotalEquity)
	}
	if bal.CurrentAssets != nil {
		out.CurrentRatio = ratio(*bal.CurrentAssets, bal.CurrentLiabilities)
		if bal.Inventory != nil {
			out.QuickRatio = ratio(*bal.CurrentAssets-*bal.Inventory, bal.CurrentLiabilities)
		}
	}
	if t.operatingIncome != nil {
		if t.interestExpense != nil && *t.interestExpense > 0 {
			ic := *t.operatingIncome / *t.interestExpense
			out.InterestCoverage = &ic
		} else {
			flag("interest_coverage: N/A - no interest expense")
		}
	}
	out.AltmanZScore = altmanZ(t, bal, marketCap)
	if out.AltmanZScore == nil {
		flag("altman_z: N/A - missing balance fields")
	}

	// Efficiency.
	if t.revenue != nil {
		out.AssetTurnover = ratio(*t.revenue, bal.TotalAssets)
		out.ReceivablesTurnover = ratio(*t.revenue, bal.Receivables)
	}
	if t.costOfRevenue != nil {
		out.InventoryTurnover = ratio(*t.costOfRevenue, bal.Inventory)
	}

	// Growth, same quarter one year prior.
	out.RevenueGrowthYoY = yoy(in.Quarters, func(f *domain.Fundamentals) *float64 { return f.Revenue })
	if out.RevenueGrowthYoY == nil {
		flag("revenue_growth: N/A - no prior-year quarter")
	}
	out.EarningsGrowthYoY = yoy(in.Quarters, func(f *domain.Fundamentals) *float64 { return f.NetIncome })
	out.FCFGrowthYoY = yoy(in.Quarters, func(f *domain.Fundamentals) *float64 { return f.FreeCashFlow })

	// PEG needs both a valid PE and positive earnings growth.
	if out.PE != nil && out.EarningsGrowthYoY != nil && *out.EarningsGrowthYoY > 0 {
		peg := *out.PE / (*out.EarningsGrowthYoY * 100)
		out.PEG = &peg
	} else {
		flag("peg: N/A - no positive earnings growth")
	}

	// Quality.
	if t.freeCashFlow != nil && t.netIncome != nil && *t.netIncome > 0 {
		fni := *t.freeCashFlow / *t.netIncome
		out.FCFToNetIncome = &fni
	}
	out.CashConversionCycle = cashConversionCycle(t, bal)

	// Intrinsic.
	if bal.EPSDiluted != nil && bal.BookValuePerShare != nil &&
		*bal.EPSDiluted > 0 && *bal.BookValuePerShare > 0 {
		gn := math.Sqrt(15 * *bal.EPSDiluted * *bal.BookValuePerShare)
		out.GrahamNumber = &gn
	} else {
		flag("graham: N/A - negative eps or book value")
	}

	return out
}

// ratio divides num by a positive denominator, nil otherwise.
func ratio(num float64, denom *float64) *float64 {
	if denom == nil || *denom <= 0 {
		return nil
	}
	v := num / *denom
	return &v
}

func capped(v, cap float64) *float64 {
	if v > cap {
		v = cap
	}
	return &v
}

// altmanZ computes 1.2A + 1.4B + 3.3C + 0.6D + 1.0E.
func altmanZ(t *ttm, bal *domain.Fundamentals, marketCap *float64) *float64 {
	if bal.TotalAssets == nil || *bal.TotalAssets <= 0 ||
		bal.TotalEquity == nil || marketCap == nil ||
		bal.CurrentAssets == nil || bal.CurrentLiabilities == nil ||
		bal.RetainedEarnings == nil || t.operatingIncome == nil || t.revenue == nil {
		return nil
	}

	assets := *bal.TotalAssets
	liabilities := assets - *bal.TotalEquity
	if liabilities <= 0 {
		return nil
	}

	a := (*bal.CurrentAssets - *bal.CurrentLiabilities) / assets
	b := *bal.RetainedEarnings / assets
	c := *t.operatingIncome / assets
	d := *marketCap / liabilities
	e := *t.revenue / assets

	z := 1.2*a + 1.4*b + 3.3*c + 0.6*d + 1.0*e
	return &z
}

// yoy compares the newest quarter against the same fiscal quarter one year
// prior. Nil when the comparison row is missing or the base is not
// positive.
func yoy(quarters []domain.Fundamentals, get func(*domain.Fundamentals) *float64) *float64 {
	if len(quarters) == 0 {
		return nil
	}
	cur := &quarters[0]
	curVal := get(cur)
	if curVal == nil {
		return nil
	}

	for i := 1; i < len(quarters); i++ {
		prior := &quarters[i]
		if prior.FiscalYear == cur.FiscalYear-1 && prior.FiscalQuarter == cur.FiscalQuarter {
			base := get(prior)
			if base == nil || *base <= 0 {
				return nil
			}
			g := (*curVal - *base) / *base
			return &g
		}
	}
	return nil
}

// cashConversionCycle is DIO + DSO. Days payable outstanding is omitted
// because accounts payable is not part of the statement pack; see the
// quality component thresholds, which are calibrated for the two-term
// cycle.
func cashConversionCycle(t *ttm, bal *domain.Fundamentals) *float64 {
	if t.revenue == nil || *t.revenue <= 0 ||
		t.costOfRevenue == nil || *t.costOfRevenue <= 0 ||
		bal.Inventory == nil || bal.Receivables == nil {
		return nil
	}
	dio := 365 * *bal.Inventory / *t.costOfRevenue
	dso := 365 * *bal.Receivables / *t.revenue
	ccc := dio + dso
	return &ccc
}
