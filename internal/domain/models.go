// Package domain holds the core data model shared by every pipeline stage.
// The types here are pure data; validation lives next to the type it guards.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Stock is one row of the investment universe.
type Stock struct {
	Ticker                 string
	Active                 bool
	Sector                 string
	Industry               string
	MarketCapCategory      string
	NextEarningsDate       *time.Time
	FundamentalsLastUpdate *time.Time
	DataPriority           int
}

// DailyBar is one day's OHLCV tuple for a ticker. Prices are held as floats
// in memory; the store scales them to integer cents on the way down.
type DailyBar struct {
	Ticker string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Validate rejects bars that violate the OHLC invariants. Invalid bars are
// dropped before storage, never silently corrected.
func (b DailyBar) Validate() error {
	if b.Ticker == "" {
		return fmt.Errorf("%w: empty ticker", ErrDataInvalid)
	}
	if b.Ticker != strings.ToUpper(b.Ticker) {
		return fmt.Errorf("%w: ticker %q not uppercase", ErrDataInvalid, b.Ticker)
	}
	if b.Date.IsZero() {
		return fmt.Errorf("%w: %s bar has zero date", ErrDataInvalid, b.Ticker)
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s %s has non-positive or NaN price", ErrDataInvalid, b.Ticker, b.Date.Format("2006-01-02"))
		}
	}
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("%w: %s %s low above open/close", ErrDataInvalid, b.Ticker, b.Date.Format("2006-01-02"))
	}
	if b.High < b.Open || b.High < b.Close {
		return fmt.Errorf("%w: %s %s high below open/close", ErrDataInvalid, b.Ticker, b.Date.Format("2006-01-02"))
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: %s %s high below low", ErrDataInvalid, b.Ticker, b.Date.Format("2006-01-02"))
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: %s %s negative volume", ErrDataInvalid, b.Ticker, b.Date.Format("2006-01-02"))
	}
	return nil
}

// PeriodType distinguishes annual from quarterly statement rows.
type PeriodType string

const (
	PeriodAnnual    PeriodType = "annual"
	PeriodQuarterly PeriodType = "quarterly"
)

// Fundamentals is one reported statement period for a ticker.
// Unique on (ticker, report_date, period_type).
type Fundamentals struct {
	Ticker             string
	ReportDate         time.Time
	PeriodType         PeriodType
	FiscalYear         int
	FiscalQuarter      int
	Revenue            *float64
	CostOfRevenue      *float64
	GrossProfit        *float64
	OperatingIncome    *float64
	NetIncome          *float64
	EBITDA             *float64
	EPSDiluted         *float64
	BookValuePerShare  *float64
	TotalAssets        *float64
	CurrentAssets      *float64
	CurrentLiabilities *float64
	Inventory          *float64
	Receivables        *float64
	RetainedEarnings   *float64
	TotalDebt          *float64
	TotalEquity        *float64
	Cash               *float64
	OperatingCashFlow  *float64
	FreeCashFlow       *float64
	CapEx              *float64
	InterestExpense    *float64
	SharesOutstanding  *float64
	SharesFloat        *float64
	DataSource         string
	Quality            string // "high" (quarterly TTM) or "low" (annual fallback)
	LastUpdated        time.Time
}

// Ratios is the 27-field fundamental ratio vector for a ticker on a date.
// Nil means the ratio could not be computed; the reason is flagged in Flags.
type Ratios struct {
	Ticker          string
	CalculationDate time.Time

	// Valuation
	PE       *float64
	PB       *float64
	PS       *float64
	EVEBITDA *float64
	PEG      *float64

	// Profitability
	ROE             *float64
	ROA             *float64
	ROIC            *float64
	GrossMargin     *float64
	OperatingMargin *float64
	NetMargin       *float64

	// Financial health
	DebtToEquity     *float64
	CurrentRatio     *float64
	QuickRatio       *float64
	InterestCoverage *float64
	AltmanZScore     *float64

	// Efficiency
	AssetTurnover       *float64
	InventoryTurnover   *float64
	ReceivablesTurnover *float64

	// Growth
	RevenueGrowthYoY  *float64
	EarningsGrowthYoY *float64
	FCFGrowthYoY      *float64

	// Quality
	FCFToNetIncome      *float64
	CashConversionCycle *float64

	// Market
	MarketCap       *float64
	EnterpriseValue *float64

	// Intrinsic
	GrahamNumber *float64

	// Flags records why individual ratios are nil, e.g.
	// "pe: N/A - negative earnings".
	Flags []string
}

// RiskLevel classifies a ticker's warning state for score multipliers.
type RiskLevel string

const (
	RiskNone    RiskLevel = "none"
	RiskCaution RiskLevel = "caution"
	RiskWarning RiskLevel = "warning"
	RiskHigh    RiskLevel = "high_risk"
)

// InvestorScores holds the three profile scores plus their components.
type InvestorScores struct {
	Ticker          string
	CalculationDate time.Time

	ConservativeScore *float64
	GARPScore         *float64
	DeepValueScore    *float64

	ValuationScore     *float64
	QualityScore       *float64
	FinHealthScore     *float64
	ProfitabilityScore *float64
	GrowthScore        *float64
	ManagementScore    *float64

	RiskLevel   RiskLevel
	RiskFactors []string
	Explanation string // human-readable blob: flags, redistributions, multipliers
}

// IndicatorSet holds one trading day's computed indicator values for a
// ticker. Nil means the lookback window was not satisfied; the store writes
// only non-nil fields so partial recomputes never erase older values.
type IndicatorSet struct {
	RSI14 *float64

	EMA20  *float64
	EMA50  *float64
	EMA100 *float64
	EMA200 *float64
	SMA20  *float64
	SMA50  *float64
	SMA200 *float64

	MACD          *float64
	MACDSignal    *float64
	MACDHistogram *float64

	BollingerUpper  *float64
	BollingerMiddle *float64
	BollingerLower  *float64

	StochasticK *float64
	StochasticD *float64
	CCI20       *float64
	ATR14       *float64

	ADX14   *float64
	DIPlus  *float64
	DIMinus *float64

	VWAP20      *float64
	OBV         *float64
	VolumeSMA20 *float64

	Fib236 *float64
	Fib382 *float64
	Fib500 *float64
	Fib618 *float64
	Fib786 *float64

	PivotPoint  *float64
	Resistance1 *float64
	Resistance2 *float64
	Resistance3 *float64
	Support1    *float64
	Support2    *float64
	Support3    *float64

	SwingHigh *float64
	SwingLow  *float64
}

// AnalystRating is the normalized consensus view for a ticker.
type AnalystRating struct {
	Ticker      string
	Consensus   string // strong_buy, buy, hold, sell, strong_sell
	TargetPrice *float64
	NumAnalysts int
	AsOf        time.Time
}

// EarningsEvent is one row of the earnings calendar.
type EarningsEvent struct {
	Ticker          string
	EarningsDate    time.Time
	Confirmed       bool
	EPSEstimate     *float64
	RevenueEstimate *float64
	PriorityLevel   int
	DataUpdated     bool
}

// APIUsage is the per-(provider, date, endpoint) call ledger row.
// The ledger is append-incremented; a charge is recorded before the HTTP
// request is issued.
type APIUsage struct {
	Provider   string
	Date       time.Time
	Endpoint   string
	CallsMade  int
	CallsLimit int
	ResetTime  time.Time
}

// UpdateLog is one row per orchestrated unit of work (phase or run summary).
type UpdateLog struct {
	ID               int64
	RunID            string
	UpdateType       string
	Ticker           string
	Status           string
	ErrorMessage     string
	RecordsProcessed int
	ExecutionTimeMS  int64
	StartedAt        time.Time
	CompletedAt      time.Time
}

// Run statuses recorded in update_log.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
)
