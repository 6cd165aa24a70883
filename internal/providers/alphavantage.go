package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/domain"
)

const alphaVantageDefaultBaseURL = "https://www.alphavantage.co"

// AlphaVantage is the Alpha Vantage client, last in the default chain. It
// serves historical ranges only; its free tier is too small for anything
// batch-shaped.
type AlphaVantage struct {
	client  *http.Client
	baseURL string
	apiKey  string
	log     zerolog.Logger
}

func NewAlphaVantage(apiKey string, log zerolog.Logger) *AlphaVantage {
	return &AlphaVantage{
		client:  newHTTPClient(),
		baseURL: alphaVantageDefaultBaseURL,
		apiKey:  apiKey,
		log:     log.With().Str("client", "alphavantage").Logger(),
	}
}

func (a *AlphaVantage) Name() string { return "alphavantage" }

func (a *AlphaVantage) Capabilities() []Capability {
	return []Capability{CapHistoricalRange}
}

type alphaVantageDailyResponse struct {
	ErrorMessage string                       `json:"Error Message"`
	Note         string                       `json:"Note"`
	TimeSeries   map[string]map[string]string `json:"Time Series (Daily)"`
}

// HistoricalRange fetches the full daily series and trims it to [from, to].
func (a *AlphaVantage) HistoricalRange(ctx context.Context, ticker string, from, to time.Time) ([]domain.DailyBar, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", ticker)
	params.Set("outputsize", "full")
	params.Set("apikey", a.apiKey)

	var result alphaVantageDailyResponse
	if err := getJSON(ctx, a.client, a.baseURL+"/query?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	if result.ErrorMessage != "" {
		return nil, fmt.Errorf("%s: %w", result.ErrorMessage, domain.ErrTickerUnknown)
	}
	// Alpha Vantage signals throttling with a 200 plus a "Note" body.
	if result.Note != "" {
		return nil, fmt.Errorf("throttled: %w", domain.ErrRateExceeded)
	}
	if len(result.TimeSeries) == 0 {
		return nil, fmt.Errorf("empty series for %s: %w", ticker, domain.ErrTickerUnknown)
	}

	var bars []domain.DailyBar
	for dateStr, fields := range result.TimeSeries {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		if date.Before(from) || date.After(to) {
			continue
		}

		bar := domain.DailyBar{
			Ticker: strings.ToUpper(ticker),
			Date:   date,
			Open:   parseFloat(fields["1. open"]),
			High:   parseFloat(fields["2. high"]),
			Low:    parseFloat(fields["3. low"]),
			Close:  parseFloat(fields["4. close"]),
			Volume: int64(parseFloat(fields["5. volume"])),
		}
		bars = append(bars, bar)
	}

	sortBarsByDate(bars)
	a.log.Debug().Str("ticker", ticker).Int("count", len(bars)).Msg("Fetched historical range")
	return bars, nil
}

// QuoteBatch is not served by Alpha Vantage in this deployment.
func (a *AlphaVantage) QuoteBatch(ctx context.Context, tickers []string) ([]domain.DailyBar, error) {
	return nil, fmt.Errorf("alphavantage does not serve quote batches: %w", domain.ErrProviderDown)
}

// Fundamentals is not served by Alpha Vantage in this deployment.
func (a *AlphaVantage) Fundamentals(ctx context.Context, ticker string) ([]domain.Fundamentals, error) {
	return nil, fmt.Errorf("alphavantage does not serve fundamentals: %w", domain.ErrProviderDown)
}

// EarningsCalendar is not served by Alpha Vantage in this deployment.
func (a *AlphaVantage) EarningsCalendar(ctx context.Context, from, to time.Time) ([]domain.EarningsEvent, error) {
	return nil, fmt.Errorf("alphavantage does not serve earnings calendar: %w", domain.ErrProviderDown)
}

// AnalystRecommendations is not served by Alpha Vantage in this deployment.
func (a *AlphaVantage) AnalystRecommendations(ctx context.Context, ticker string) (*domain.AnalystRating, error) {
	return nil, fmt.Errorf("alphavantage does not serve analyst recommendations: %w", domain.ErrProviderDown)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func sortBarsByDate(bars []domain.DailyBar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}
