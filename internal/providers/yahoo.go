package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/domain"
)

const yahooDefaultBaseURL = "https://query1.finance.yahoo.com"

// Yahoo is the Yahoo Finance chart/quote API client. It serves quote
// batches, historical ranges, and analyst consensus.
type Yahoo struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

func NewYahoo(log zerolog.Logger) *Yahoo {
	return &Yahoo{
		client:  newHTTPClient(),
		baseURL: yahooDefaultBaseURL,
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

func (y *Yahoo) Name() string { return "yahoo" }

func (y *Yahoo) Capabilities() []Capability {
	return []Capability{CapQuoteBatch, CapHistoricalRange, CapAnalyst}
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []map[string]interface{} `json:"result"`
		Error  interface{}              `json:"error"`
	} `json:"quoteResponse"`
}

// QuoteBatch fetches the latest regular-session bar for up to 100 tickers
// in a single quote API call.
func (y *Yahoo) QuoteBatch(ctx context.Context, tickers []string) ([]domain.DailyBar, error) {
	if len(tickers) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Add("symbols", strings.Join(tickers, ","))
	params.Add("fields", "symbol,regularMarketOpen,regularMarketDayHigh,regularMarketDayLow,"+
		"regularMarketPrice,regularMarketVolume,regularMarketTime")

	var result yahooQuoteResponse
	if err := getJSON(ctx, y.client, y.baseURL+"/v7/finance/quote?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	if result.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("quote API error: %w: %v", domain.ErrDataInvalid, result.QuoteResponse.Error)
	}
	if len(result.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no quotes for batch of %d: %w", len(tickers), domain.ErrTickerUnknown)
	}

	bars := make([]domain.DailyBar, 0, len(result.QuoteResponse.Result))
	for _, q := range result.QuoteResponse.Result {
		symbol := getString(q, "symbol", "")
		if symbol == "" {
			continue
		}

		ts := getFloat64OrZero(q, "regularMarketTime")
		bar := domain.DailyBar{
			Ticker: strings.ToUpper(symbol),
			Date:   time.Unix(int64(ts), 0).UTC().Truncate(24 * time.Hour),
			Open:   getFloat64OrZero(q, "regularMarketOpen"),
			High:   getFloat64OrZero(q, "regularMarketDayHigh"),
			Low:    getFloat64OrZero(q, "regularMarketDayLow"),
			Close:  getFloat64OrZero(q, "regularMarketPrice"),
			Volume: getInt64OrZero(q, "regularMarketVolume"),
		}
		bars = append(bars, bar)
	}

	y.log.Debug().Int("requested", len(tickers)).Int("returned", len(bars)).Msg("Fetched quote batch")
	return bars, nil
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// HistoricalRange fetches daily bars for one ticker via the chart API.
func (y *Yahoo) HistoricalRange(ctx context.Context, ticker string, from, to time.Time) ([]domain.DailyBar, error) {
	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("period1", fmt.Sprintf("%d", from.Unix()))
	params.Add("period2", fmt.Sprintf("%d", to.Add(24*time.Hour).Unix()))

	reqURL := y.baseURL + "/v8/finance/chart/" + url.QueryEscape(ticker) + "?" + params.Encode()

	var result yahooChartResponse
	if err := getJSON(ctx, y.client, reqURL, &result); err != nil {
		return nil, err
	}
	if result.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error for %s: %w: %v", ticker, domain.ErrTickerUnknown, result.Chart.Error)
	}
	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		y.log.Warn().Str("ticker", ticker).Msg("No historical data returned")
		return nil, nil
	}

	chart := result.Chart.Result[0]
	quote := chart.Indicators.Quote[0]

	var bars []domain.DailyBar
	for i := range chart.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		// Yahoo emits all-zero rows for halted sessions.
		if quote.Open[i] == 0 && quote.High[i] == 0 && quote.Low[i] == 0 && quote.Close[i] == 0 {
			continue
		}

		volume := int64(0)
		if i < len(quote.Volume) {
			volume = quote.Volume[i]
		}

		bars = append(bars, domain.DailyBar{
			Ticker: strings.ToUpper(ticker),
			Date:   time.Unix(chart.Timestamp[i], 0).UTC().Truncate(24 * time.Hour),
			Open:   quote.Open[i],
			High:   quote.High[i],
			Low:    quote.Low[i],
			Close:  quote.Close[i],
			Volume: volume,
		})
	}

	y.log.Debug().Str("ticker", ticker).Int("count", len(bars)).Msg("Fetched historical range")
	return bars, nil
}

// Fundamentals is not served by Yahoo in this deployment.
func (y *Yahoo) Fundamentals(ctx context.Context, ticker string) ([]domain.Fundamentals, error) {
	return nil, fmt.Errorf("yahoo does not serve fundamentals: %w", domain.ErrProviderDown)
}

// EarningsCalendar is not served by Yahoo in this deployment.
func (y *Yahoo) EarningsCalendar(ctx context.Context, from, to time.Time) ([]domain.EarningsEvent, error) {
	return nil, fmt.Errorf("yahoo does not serve earnings calendar: %w", domain.ErrProviderDown)
}

// AnalystRecommendations fetches the consensus recommendation and mean
// target price from the quote API.
func (y *Yahoo) AnalystRecommendations(ctx context.Context, ticker string) (*domain.AnalystRating, error) {
	params := url.Values{}
	params.Add("symbols", ticker)
	params.Add("fields", "symbol,recommendationKey,targetMeanPrice,numberOfAnalystOpinions")

	var result yahooQuoteResponse
	if err := getJSON(ctx, y.client, y.baseURL+"/v7/finance/quote?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	if len(result.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no quote data for %s: %w", ticker, domain.ErrTickerUnknown)
	}

	info := result.QuoteResponse.Result[0]
	rating := &domain.AnalystRating{
		Ticker:      strings.ToUpper(ticker),
		Consensus:   normalizeConsensus(getString(info, "recommendationKey", "hold")),
		TargetPrice: getFloat64(info, "targetMeanPrice"),
		NumAnalysts: getIntOrZero(info, "numberOfAnalystOpinions"),
		AsOf:        time.Now().UTC(),
	}
	return rating, nil
}

func normalizeConsensus(key string) string {
	switch key {
	case "strongBuy", "strong_buy":
		return "strong_buy"
	case "buy":
		return "buy"
	case "sell", "underperform":
		return "sell"
	case "strongSell", "strong_sell":
		return "strong_sell"
	default:
		return "hold"
	}
}

// Map extraction helpers shared by the loosely-typed quote responses.

func getFloat64(m map[string]interface{}, key string) *float64 {
	if val, ok := m[key]; ok && val != nil {
		if v, ok := val.(float64); ok {
			return &v
		}
	}
	return nil
}

func getFloat64OrZero(m map[string]interface{}, key string) float64 {
	if v := getFloat64(m, key); v != nil {
		return *v
	}
	return 0
}

func getInt64OrZero(m map[string]interface{}, key string) int64 {
	if v := getFloat64(m, key); v != nil {
		return int64(*v)
	}
	return 0
}

func getIntOrZero(m map[string]interface{}, key string) int {
	return int(getInt64OrZero(m, key))
}

func getString(m map[string]interface{}, key, defaultVal string) string {
	if val, ok := m[key]; ok && val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}
