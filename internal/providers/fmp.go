package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/domain"
)

const fmpDefaultBaseURL = "https://financialmodelingprep.com/api/v3"

// FMP is the Financial Modeling Prep client. It serves full financial
// statements, the earnings calendar, and historical prices.
type FMP struct {
	client  *http.Client
	baseURL string
	apiKey  string
	log     zerolog.Logger
}

func NewFMP(apiKey string, log zerolog.Logger) *FMP {
	return &FMP{
		client:  newHTTPClient(),
		baseURL: fmpDefaultBaseURL,
		apiKey:  apiKey,
		log:     log.With().Str("client", "fmp").Logger(),
	}
}

func (f *FMP) Name() string { return "fmp" }

func (f *FMP) Capabilities() []Capability {
	return []Capability{CapFundamentals, CapEarnings, CapHistoricalRange}
}

func (f *FMP) url(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", f.apiKey)
	return f.baseURL + path + "?" + params.Encode()
}

// QuoteBatch is not served by FMP in this deployment.
func (f *FMP) QuoteBatch(ctx context.Context, tickers []string) ([]domain.DailyBar, error) {
	return nil, fmt.Errorf("fmp does not serve quote batches: %w", domain.ErrProviderDown)
}

type fmpHistoricalResponse struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	} `json:"historical"`
}

// HistoricalRange fetches daily bars in ascending date order.
func (f *FMP) HistoricalRange(ctx context.Context, ticker string, from, to time.Time) ([]domain.DailyBar, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))

	var result fmpHistoricalResponse
	if err := getJSON(ctx, f.client, f.url("/historical-price-full/"+url.PathEscape(ticker), params), &result); err != nil {
		return nil, err
	}
	if len(result.Historical) == 0 {
		return nil, fmt.Errorf("no history for %s: %w", ticker, domain.ErrTickerUnknown)
	}

	// FMP returns newest first.
	bars := make([]domain.DailyBar, 0, len(result.Historical))
	for i := len(result.Historical) - 1; i >= 0; i-- {
		row := result.Historical[i]
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			return nil, fmt.Errorf("bad date %q for %s: %w", row.Date, ticker, domain.ErrDataInvalid)
		}
		bars = append(bars, domain.DailyBar{
			Ticker: strings.ToUpper(ticker),
			Date:   date,
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}
	return bars, nil
}

type fmpIncomeRow struct {
	Date             string   `json:"date"`
	Period           string   `json:"period"`
	CalendarYear     string   `json:"calendarYear"`
	Revenue          *float64 `json:"revenue"`
	CostOfRevenue    *float64 `json:"costOfRevenue"`
	GrossProfit      *float64 `json:"grossProfit"`
	OperatingIncome  *float64 `json:"operatingIncome"`
	NetIncome        *float64 `json:"netIncome"`
	EBITDA           *float64 `json:"ebitda"`
	EPSDiluted       *float64 `json:"epsdiluted"`
	InterestExpense  *float64 `json:"interestExpense"`
	SharesOutDiluted *float64 `json:"weightedAverageShsOutDil"`
}

type fmpBalanceRow struct {
	Date               string   `json:"date"`
	Period             string   `json:"period"`
	TotalAssets        *float64 `json:"totalAssets"`
	CurrentAssets      *float64 `json:"totalCurrentAssets"`
	CurrentLiabilities *float64 `json:"totalCurrentLiabilities"`
	Inventory          *float64 `json:"inventory"`
	Receivables        *float64 `json:"netReceivables"`
	RetainedEarnings   *float64 `json:"retainedEarnings"`
	TotalDebt          *float64 `json:"totalDebt"`
	TotalEquity        *float64 `json:"totalStockholdersEquity"`
	Cash               *float64 `json:"cashAndCashEquivalents"`
}

type fmpCashFlowRow struct {
	Date              string   `json:"date"`
	Period            string   `json:"period"`
	OperatingCashFlow *float64 `json:"operatingCashFlow"`
	FreeCashFlow      *float64 `json:"freeCashFlow"`
	CapEx             *float64 `json:"capitalExpenditure"`
}

// Fundamentals fetches the last eight quarterly and two annual statement
// periods, merging income, balance sheet, and cash flow rows by report
// date. One capability call, three upstream requests.
func (f *FMP) Fundamentals(ctx context.Context, ticker string) ([]domain.Fundamentals, error) {
	var rows []domain.Fundamentals

	for _, period := range []struct {
		name  string
		limit string
		pt    domain.PeriodType
	}{
		{"quarter", "8", domain.PeriodQuarterly},
		{"annual", "2", domain.PeriodAnnual},
	} {
		params := url.Values{}
		params.Set("period", period.name)
		params.Set("limit", period.limit)

		var income []fmpIncomeRow
		if err := getJSON(ctx, f.client, f.url("/income-statement/"+url.PathEscape(ticker), params), &income); err != nil {
			return nil, err
		}
		var balance []fmpBalanceRow
		if err := getJSON(ctx, f.client, f.url("/balance-sheet-statement/"+url.PathEscape(ticker), params), &balance); err != nil {
			return nil, err
		}
		var cashflow []fmpCashFlowRow
		if err := getJSON(ctx, f.client, f.url("/cash-flow-statement/"+url.PathEscape(ticker), params), &cashflow); err != nil {
			return nil, err
		}

		balanceByDate := make(map[string]fmpBalanceRow, len(balance))
		for _, b := range balance {
			balanceByDate[b.Date] = b
		}
		cashByDate := make(map[string]fmpCashFlowRow, len(cashflow))
		for _, c := range cashflow {
			cashByDate[c.Date] = c
		}

		for _, inc := range income {
			date, err := time.Parse("2006-01-02", inc.Date)
			if err != nil {
				return nil, fmt.Errorf("bad report date %q for %s: %w", inc.Date, ticker, domain.ErrDataInvalid)
			}

			row := domain.Fundamentals{
				Ticker:          strings.ToUpper(ticker),
				ReportDate:      date,
				PeriodType:      period.pt,
				FiscalQuarter:   fiscalQuarter(inc.Period),
				Revenue:         inc.Revenue,
				CostOfRevenue:   inc.CostOfRevenue,
				GrossProfit:     inc.GrossProfit,
				OperatingIncome: inc.OperatingIncome,
				NetIncome:       inc.NetIncome,
				EBITDA:          inc.EBITDA,
				EPSDiluted:      inc.EPSDiluted,
				InterestExpense: inc.InterestExpense,
				DataSource:      "fmp",
			}
			if year, err := strconv.Atoi(inc.CalendarYear); err == nil {
				row.FiscalYear = year
			}
			if inc.SharesOutDiluted != nil {
				row.SharesOutstanding = inc.SharesOutDiluted
			}

			if b, ok := balanceByDate[inc.Date]; ok {
				row.TotalAssets = b.TotalAssets
				row.CurrentAssets = b.CurrentAssets
				row.CurrentLiabilities = b.CurrentLiabilities
				row.Inventory = b.Inventory
				row.Receivables = b.Receivables
				row.RetainedEarnings = b.RetainedEarnings
				row.TotalDebt = b.TotalDebt
				row.TotalEquity = b.TotalEquity
				row.Cash = b.Cash
				if b.TotalEquity != nil && row.SharesOutstanding != nil && *row.SharesOutstanding > 0 {
					bvps := *b.TotalEquity / *row.SharesOutstanding
					row.BookValuePerShare = &bvps
				}
			}
			if c, ok := cashByDate[inc.Date]; ok {
				row.OperatingCashFlow = c.OperatingCashFlow
				row.FreeCashFlow = c.FreeCashFlow
				row.CapEx = c.CapEx
			}

			rows = append(rows, row)
		}
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no statements for %s: %w", ticker, domain.ErrTickerUnknown)
	}

	f.log.Debug().Str("ticker", ticker).Int("periods", len(rows)).Msg("Fetched fundamentals")
	return rows, nil
}

func fiscalQuarter(period string) int {
	switch period {
	case "Q1":
		return 1
	case "Q2":
		return 2
	case "Q3":
		return 3
	case "Q4":
		return 4
	}
	return 0
}

type fmpEarningsRow struct {
	Date            string   `json:"date"`
	Symbol          string   `json:"symbol"`
	EPSEstimated    *float64 `json:"epsEstimated"`
	RevenueEstimate *float64 `json:"revenueEstimated"`
	Time            string   `json:"time"`
}

// EarningsCalendar fetches scheduled earnings events in [from, to].
func (f *FMP) EarningsCalendar(ctx context.Context, from, to time.Time) ([]domain.EarningsEvent, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))

	var rows []fmpEarningsRow
	if err := getJSON(ctx, f.client, f.url("/earning_calendar", params), &rows); err != nil {
		return nil, err
	}

	events := make([]domain.EarningsEvent, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			continue
		}
		events = append(events, domain.EarningsEvent{
			Ticker:          strings.ToUpper(row.Symbol),
			EarningsDate:    date,
			Confirmed:       row.Time != "",
			EPSEstimate:     row.EPSEstimated,
			RevenueEstimate: row.RevenueEstimate,
		})
	}
	return events, nil
}

// AnalystRecommendations is not served by FMP in this deployment.
func (f *FMP) AnalystRecommendations(ctx context.Context, ticker string) (*domain.AnalystRating, error) {
	return nil, fmt.Errorf("fmp does not serve analyst recommendations: %w", domain.ErrProviderDown)
}
