package fundamentals

import (
	"fmt"
	"strings"

	"github.com/aristath/nightshift/internal/domain"
)

// Risk multipliers applied after profile weighting.
const (
	multiplierHighRisk = 0.70
	multiplierWarning  = 0.85
	multiplierCaution  = 0.95
)

// band maps a raw ratio onto [0,100] linearly between worst and best.
// worst > best means lower values score higher.
type band struct {
	worst, best float64
}

func (b band) score(v float64) float64 {
	span := b.best - b.worst
	pos := (v - b.worst) / span
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos * 100
}

// benchmarks holds the per-sector scoring bands. The zero key is the
// cross-sector default; a handful of sectors with structurally different
// economics get their own valuation and leverage bands.
type benchmarks struct {
	pe, pb, ps, evEBITDA          band
	fcfConversion, grossMargin    band
	cashCycle                     band
	currentRatio, debtToEquity    band
	altmanZ, interestCoverage     band
	roe, roa, opMargin, netMargin band
	revGrowth, epsGrowth, fcfGrowth band
	roic, assetTurnover           band
}

func defaultBenchmarks() benchmarks {
	return benchmarks{
		pe:       band{worst: 40, best: 10},
		pb:       band{worst: 10, best: 1},
		ps:       band{worst: 10, best: 1},
		evEBITDA: band{worst: 25, best: 6},

		fcfConversion: band{worst: 0, best: 1.2},
		grossMargin:   band{worst: 0.20, best: 0.60},
		cashCycle:     band{worst: 120, best: 20},

		currentRatio:     band{worst: 1.0, best: 3.0},
		debtToEquity:     band{worst: 2.0, best: 0.0},
		altmanZ:          band{worst: 1.0, best: 4.0},
		interestCoverage: band{worst: 1.0, best: 10.0},

		roe:       band{worst: 0, best: 0.25},
		roa:       band{worst: 0, best: 0.10},
		opMargin:  band{worst: 0, best: 0.25},
		netMargin: band{worst: 0, best: 0.20},

		revGrowth: band{worst: 0, best: 0.25},
		epsGrowth: band{worst: 0, best: 0.30},
		fcfGrowth: band{worst: 0, best: 0.25},

		roic:          band{worst: 0, best: 0.20},
		assetTurnover: band{worst: 0.3, best: 1.5},
	}
}

// sectorBenchmarks adjusts bands where the default would systematically
// punish or flatter a sector.
func sectorBenchmarks(sector string) benchmarks {
	b := defaultBenchmarks()
	switch sector {
	case "Technology":
		b.pe = band{worst: 60, best: 15}
		b.ps = band{worst: 15, best: 2}
		b.evEBITDA = band{worst: 35, best: 10}
		b.grossMargin = band{worst: 0.35, best: 0.75}
	case "Utilities":
		b.debtToEquity = band{worst: 3.5, best: 1.0}
		b.revGrowth = band{worst: 0, best: 0.08}
		b.epsGrowth = band{worst: 0, best: 0.10}
		b.assetTurnover = band{worst: 0.1, best: 0.5}
	case "Financial Services":
		b.pb = band{worst: 3, best: 0.7}
		b.debtToEquity = band{worst: 8.0, best: 2.0}
	}
	return b
}

// profileWeights orders: valuation, quality, financial health,
// profitability, growth, management.
var profileWeights = map[string][6]float64{
	"conservative": {0.25, 0.20, 0.30, 0.15, 0.05, 0.05},
	"garp":         {0.25, 0.20, 0.10, 0.15, 0.25, 0.05},
	"deep_value":   {0.40, 0.15, 0.25, 0.10, 0.05, 0.05},
}

// ComputeScores turns a ratio vector into the three profile scores.
// Missing components are dropped and their weight is redistributed across
// the rest; risk multipliers are applied last.
func ComputeScores(ratios domain.Ratios, sector string) domain.InvestorScores {
	b := sectorBenchmarks(sector)
	out := domain.InvestorScores{
		Ticker:          ratios.Ticker,
		CalculationDate: ratios.CalculationDate,
	}

	var notes []string

	out.ValuationScore = component(
		scoreOf(ratios.PE, b.pe, true),
		scoreOf(ratios.PB, b.pb, true),
		scoreOf(ratios.PS, b.ps, true),
		scoreOf(ratios.EVEBITDA, b.evEBITDA, true),
	)
	out.QualityScore = component(
		scoreOf(ratios.FCFToNetIncome, b.fcfConversion, false),
		scoreOf(ratios.GrossMargin, b.grossMargin, false),
		scoreOf(ratios.CashConversionCycle, b.cashCycle, true),
	)
	out.FinHealthScore = component(
		scoreOf(ratios.CurrentRatio, b.currentRatio, false),
		scoreOf(ratios.DebtToEquity, b.debtToEquity, true),
		scoreOf(ratios.AltmanZScore, b.altmanZ, false),
		scoreOf(ratios.InterestCoverage, b.interestCoverage, false),
	)
	out.ProfitabilityScore = component(
		scoreOf(ratios.ROE, b.roe, false),
		scoreOf(ratios.ROA, b.roa, false),
		scoreOf(ratios.OperatingMargin, b.opMargin, false),
		scoreOf(ratios.NetMargin, b.netMargin, false),
	)
	out.GrowthScore = component(
		scoreOf(ratios.RevenueGrowthYoY, b.revGrowth, false),
		scoreOf(ratios.EarningsGrowthYoY, b.epsGrowth, false),
		scoreOf(ratios.FCFGrowthYoY, b.fcfGrowth, false),
	)
	out.ManagementScore = component(
		scoreOf(ratios.ROIC, b.roic, false),
		scoreOf(ratios.AssetTurnover, b.assetTurnover, false),
	)

	out.RiskLevel, out.RiskFactors = assessRisk(ratios)

	multiplier := 1.0
	switch out.RiskLevel {
	case domain.RiskHigh:
		multiplier = multiplierHighRisk
	case domain.RiskWarning:
		multiplier = multiplierWarning
	case domain.RiskCaution:
		multiplier = multiplierCaution
	}

	components := [6]*float64{
		out.ValuationScore, out.QualityScore, out.FinHealthScore,
		out.ProfitabilityScore, out.GrowthScore, out.ManagementScore,
	}
	componentNames := [6]string{
		"valuation", "quality", "financial_health",
		"profitability", "growth", "management",
	}
	for i, c := range components {
		if c == nil {
			notes = append(notes, fmt.Sprintf("%s: N/A, weight redistributed", componentNames[i]))
		}
	}

	out.ConservativeScore = weighted(components, profileWeights["conservative"], multiplier)
	out.GARPScore = weighted(components, profileWeights["garp"], multiplier)
	out.DeepValueScore = weighted(components, profileWeights["deep_value"], multiplier)

	if multiplier != 1.0 {
		notes = append(notes, fmt.Sprintf("risk multiplier %.2f (%s)", multiplier, out.RiskLevel))
	}
	notes = append(notes, ratios.Flags...)
	out.Explanation = strings.Join(notes, "; ")

	return out
}

// scoreOf maps a pointer ratio through a band; invert flips so that lower
// raw values score higher.
func scoreOf(v *float64, b band, invert bool) *float64 {
	if v == nil {
		return nil
	}
	if invert && b.worst < b.best {
		b.worst, b.best = b.best, b.worst
	}
	s := b.score(*v)
	return &s
}

// component averages the sub-scores that exist; nil when none do.
func component(subs ...*float64) *float64 {
	var sum float64
	var n int
	for _, s := range subs {
		if s != nil {
			sum += *s
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// weighted combines components under a profile's weights. Weights of
// missing components are redistributed proportionally by renormalizing
// over the present ones, then the risk multiplier is applied.
func weighted(components [6]*float64, weights [6]float64, multiplier float64) *float64 {
	var sum, totalWeight float64
	for i, c := range components {
		if c == nil {
			continue
		}
		sum += *c * weights[i]
		totalWeight += weights[i]
	}
	if totalWeight == 0 {
		return nil
	}
	score := sum / totalWeight * multiplier
	return &score
}

// assessRisk derives the warning state from the ratio vector. The worst
// triggered level wins; every trigger is recorded as a factor.
func assessRisk(ratios domain.Ratios) (domain.RiskLevel, []string) {
	level := domain.RiskNone
	var factors []string

	raise := func(to domain.RiskLevel, factor string) {
		factors = append(factors, factor)
		if rank(to) > rank(level) {
			level = to
		}
	}

	if ratios.AltmanZScore != nil {
		switch {
		case *ratios.AltmanZScore < AltmanDistressFloor:
			raise(domain.RiskHigh, "altman z in distress zone")
		case *ratios.AltmanZScore < AltmanSafeFloor:
			raise(domain.RiskCaution, "altman z in grey zone")
		}
	}
	if ratios.DebtToEquity != nil && *ratios.DebtToEquity > 2.0 {
		raise(domain.RiskWarning, "debt to equity above 2.0")
	}
	if ratios.InterestCoverage != nil && *ratios.InterestCoverage < 1.5 {
		raise(domain.RiskWarning, "interest coverage below 1.5")
	}
	if ratios.NetMargin != nil && *ratios.NetMargin < 0 {
		raise(domain.RiskCaution, "negative trailing earnings")
	}
	if ratios.FCFToNetIncome != nil && *ratios.FCFToNetIncome < 0.5 {
		raise(domain.RiskCaution, "weak free cash flow conversion")
	}

	return level, factors
}

func rank(l domain.RiskLevel) int {
	switch l {
	case domain.RiskHigh:
		return 3
	case domain.RiskWarning:
		return 2
	case domain.RiskCaution:
		return 1
	default:
		return 0
	}
}
