// Package fundamentals refreshes company statements and derives the ratio
// vector and investor scores from them.
package fundamentals

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/database"
	"github.com/aristath/nightshift/internal/domain"
)

// timestampLayout matches CURRENT_TIMESTAMP output; TIMESTAMP columns are
// written and compared as strings in this format.
const timestampLayout = "2006-01-02 15:04:05"

// Repository handles the company_fundamentals, financial_ratios,
// investor_scores, and earnings_calendar tables.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "fundamentals").Logger(),
	}
}

// UpsertStatements writes a batch of statement periods in one transaction,
// keyed on (ticker, report_date, period_type).
func (r *Repository) UpsertStatements(rows []domain.Fundamentals) error {
	if len(rows) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO company_fundamentals (
				ticker, report_date, period_type, fiscal_year, fiscal_quarter,
				revenue, cost_of_revenue, gross_profit, operating_income, net_income,
				ebitda, eps_diluted, book_value_per_share,
				total_assets, current_assets, current_liabilities, inventory, receivables,
				retained_earnings, total_debt, total_equity, cash,
				operating_cash_flow, free_cash_flow, capex, interest_expense,
				shares_outstanding, shares_float, data_source, quality, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (ticker, report_date, period_type) DO UPDATE SET
				fiscal_year = excluded.fiscal_year,
				fiscal_quarter = excluded.fiscal_quarter,
				revenue = excluded.revenue,
				cost_of_revenue = excluded.cost_of_revenue,
				gross_profit = excluded.gross_profit,
				operating_income = excluded.operating_income,
				net_income = excluded.net_income,
				ebitda = excluded.ebitda,
				eps_diluted = excluded.eps_diluted,
				book_value_per_share = excluded.book_value_per_share,
				total_assets = excluded.total_assets,
				current_assets = excluded.current_assets,
				current_liabilities = excluded.current_liabilities,
				inventory = excluded.inventory,
				receivables = excluded.receivables,
				retained_earnings = excluded.retained_earnings,
				total_debt = excluded.total_debt,
				total_equity = excluded.total_equity,
				cash = excluded.cash,
				operating_cash_flow = excluded.operating_cash_flow,
				free_cash_flow = excluded.free_cash_flow,
				capex = excluded.capex,
				interest_expense = excluded.interest_expense,
				shares_outstanding = excluded.shares_outstanding,
				shares_float = excluded.shares_float,
				data_source = excluded.data_source,
				quality = excluded.quality,
				last_updated = excluded.last_updated`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement upsert: %w", err)
		}
		defer stmt.Close()

		for _, f := range rows {
			if _, err := stmt.Exec(
				strings.ToUpper(f.Ticker), f.ReportDate.Format("2006-01-02"), string(f.PeriodType),
				f.FiscalYear, f.FiscalQuarter,
				f.Revenue, f.CostOfRevenue, f.GrossProfit, f.OperatingIncome, f.NetIncome,
				f.EBITDA, f.EPSDiluted, f.BookValuePerShare,
				f.TotalAssets, f.CurrentAssets, f.CurrentLiabilities, f.Inventory, f.Receivables,
				f.RetainedEarnings, f.TotalDebt, f.TotalEquity, f.Cash,
				f.OperatingCashFlow, f.FreeCashFlow, f.CapEx, f.InterestExpense,
				f.SharesOutstanding, f.SharesFloat, f.DataSource, f.Quality,
				f.LastUpdated.UTC().Format(timestampLayout),
			); err != nil {
				return fmt.Errorf("failed to upsert statements for %s %s: %w",
					f.Ticker, f.ReportDate.Format("2006-01-02"), err)
			}
		}
		return nil
	})
}

// RecentPeriods returns the newest statement periods of one type,
// descending by report date.
func (r *Repository) RecentPeriods(ticker string, periodType domain.PeriodType, limit int) ([]domain.Fundamentals, error) {
	rows, err := r.db.Query(`
		SELECT ticker, report_date, period_type, fiscal_year, fiscal_quarter,
		       revenue, cost_of_revenue, gross_profit, operating_income, net_income,
		       ebitda, eps_diluted, book_value_per_share,
		       total_assets, current_assets, current_liabilities, inventory, receivables,
		       retained_earnings, total_debt, total_equity, cash,
		       operating_cash_flow, free_cash_flow, capex, interest_expense,
		       shares_outstanding, shares_float, data_source, quality, last_updated
		FROM company_fundamentals
		WHERE ticker = ? AND period_type = ?
		ORDER BY report_date DESC
		LIMIT ?`,
		strings.ToUpper(ticker), string(periodType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query periods for %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []domain.Fundamentals
	for rows.Next() {
		var f domain.Fundamentals
		var reportDate, pt, lastUpdated string
		if err := rows.Scan(&f.Ticker, &reportDate, &pt, &f.FiscalYear, &f.FiscalQuarter,
			&f.Revenue, &f.CostOfRevenue, &f.GrossProfit, &f.OperatingIncome, &f.NetIncome,
			&f.EBITDA, &f.EPSDiluted, &f.BookValuePerShare,
			&f.TotalAssets, &f.CurrentAssets, &f.CurrentLiabilities, &f.Inventory, &f.Receivables,
			&f.RetainedEarnings, &f.TotalDebt, &f.TotalEquity, &f.Cash,
			&f.OperatingCashFlow, &f.FreeCashFlow, &f.CapEx, &f.InterestExpense,
			&f.SharesOutstanding, &f.SharesFloat, &f.DataSource, &f.Quality, &lastUpdated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		date, err := time.Parse("2006-01-02", reportDate)
		if err != nil {
			return nil, fmt.Errorf("bad stored report date %q: %w", reportDate, err)
		}
		f.ReportDate = date
		f.PeriodType = domain.PeriodType(pt)
		if t, err := time.Parse(timestampLayout, lastUpdated); err == nil {
			f.LastUpdated = t
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating periods: %w", err)
	}
	return out, nil
}

// UpsertRatios writes one ratio vector, keyed on (ticker, calculation_date).
func (r *Repository) UpsertRatios(ratios domain.Ratios) error {
	_, err := r.db.Exec(`
		INSERT INTO financial_ratios (
			ticker, calculation_date,
			pe, pb, ps, ev_ebitda, peg,
			roe, roa, roic, gross_margin, operating_margin, net_margin,
			debt_to_equity, current_ratio, quick_ratio, interest_coverage, altman_z_score,
			asset_turnover, inventory_turnover, receivables_turnover,
			revenue_growth_yoy, earnings_growth_yoy, fcf_growth_yoy,
			fcf_to_net_income, cash_conversion_cycle,
			market_cap, enterprise_value, graham_number, flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, calculation_date) DO UPDATE SET
			pe = excluded.pe, pb = excluded.pb, ps = excluded.ps,
			ev_ebitda = excluded.ev_ebitda, peg = excluded.peg,
			roe = excluded.roe, roa = excluded.roa, roic = excluded.roic,
			gross_margin = excluded.gross_margin,
			operating_margin = excluded.operating_margin,
			net_margin = excluded.net_margin,
			debt_to_equity = excluded.debt_to_equity,
			current_ratio = excluded.current_ratio,
			quick_ratio = excluded.quick_ratio,
			interest_coverage = excluded.interest_coverage,
			altman_z_score = excluded.altman_z_score,
			asset_turnover = excluded.asset_turnover,
			inventory_turnover = excluded.inventory_turnover,
			receivables_turnover = excluded.receivables_turnover,
			revenue_growth_yoy = excluded.revenue_growth_yoy,
			earnings_growth_yoy = excluded.earnings_growth_yoy,
			fcf_growth_yoy = excluded.fcf_growth_yoy,
			fcf_to_net_income = excluded.fcf_to_net_income,
			cash_conversion_cycle = excluded.cash_conversion_cycle,
			market_cap = excluded.market_cap,
			enterprise_value = excluded.enterprise_value,
			graham_number = excluded.graham_number,
			flags = excluded.flags`,
		strings.ToUpper(ratios.Ticker), ratios.CalculationDate.Format("2006-01-02"),
		ratios.PE, ratios.PB, ratios.PS, ratios.EVEBITDA, ratios.PEG,
		ratios.ROE, ratios.ROA, ratios.ROIC, ratios.GrossMargin, ratios.OperatingMargin, ratios.NetMargin,
		ratios.DebtToEquity, ratios.CurrentRatio, ratios.QuickRatio, ratios.InterestCoverage, ratios.AltmanZScore,
		ratios.AssetTurnover, ratios.InventoryTurnover, ratios.ReceivablesTurnover,
		ratios.RevenueGrowthYoY, ratios.EarningsGrowthYoY, ratios.FCFGrowthYoY,
		ratios.FCFToNetIncome, ratios.CashConversionCycle,
		ratios.MarketCap, ratios.EnterpriseValue, ratios.GrahamNumber,
		strings.Join(ratios.Flags, "; "))
	if err != nil {
		return fmt.Errorf("failed to upsert ratios for %s: %w", ratios.Ticker, err)
	}
	return nil
}

// LatestRatios returns the most recent ratio vector for a ticker, or nil.
func (r *Repository) LatestRatios(ticker string) (*domain.Ratios, error) {
	row := r.db.QueryRow(`
		SELECT ticker, calculation_date,
		       pe, pb, ps, ev_ebitda, peg,
		       roe, roa, roic, gross_margin, operating_margin, net_margin,
		       debt_to_equity, current_ratio, quick_ratio, interest_coverage, altman_z_score,
		       asset_turnover, inventory_turnover, receivables_turnover,
		       revenue_growth_yoy, earnings_growth_yoy, fcf_growth_yoy,
		       fcf_to_net_income, cash_conversion_cycle,
		       market_cap, enterprise_value, graham_number, flags
		FROM financial_ratios
		WHERE ticker = ?
		ORDER BY calculation_date DESC
		LIMIT 1`,
		strings.ToUpper(ticker))

	var out domain.Ratios
	var calcDate, flags string
	err := row.Scan(&out.Ticker, &calcDate,
		&out.PE, &out.PB, &out.PS, &out.EVEBITDA, &out.PEG,
		&out.ROE, &out.ROA, &out.ROIC, &out.GrossMargin, &out.OperatingMargin, &out.NetMargin,
		&out.DebtToEquity, &out.CurrentRatio, &out.QuickRatio, &out.InterestCoverage, &out.AltmanZScore,
		&out.AssetTurnover, &out.InventoryTurnover, &out.ReceivablesTurnover,
		&out.RevenueGrowthYoY, &out.EarningsGrowthYoY, &out.FCFGrowthYoY,
		&out.FCFToNetIncome, &out.CashConversionCycle,
		&out.MarketCap, &out.EnterpriseValue, &out.GrahamNumber, &flags)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ratios for %s: %w", ticker, err)
	}

	date, err := time.Parse("2006-01-02", calcDate)
	if err != nil {
		return nil, fmt.Errorf("bad stored calculation date %q: %w", calcDate, err)
	}
	out.CalculationDate = date
	if flags != "" {
		out.Flags = strings.Split(flags, "; ")
	}
	return &out, nil
}

// UpsertScores writes one investor score row.
func (r *Repository) UpsertScores(s domain.InvestorScores) error {
	_, err := r.db.Exec(`
		INSERT INTO investor_scores (
			ticker, calculation_date,
			conservative_score, garp_score, deep_value_score,
			valuation_score, quality_score, fin_health_score,
			profitability_score, growth_score, management_score,
			risk_level, risk_factors, explanation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, calculation_date) DO UPDATE SET
			conservative_score = excluded.conservative_score,
			garp_score = excluded.garp_score,
			deep_value_score = excluded.deep_value_score,
			valuation_score = excluded.valuation_score,
			quality_score = excluded.quality_score,
			fin_health_score = excluded.fin_health_score,
			profitability_score = excluded.profitability_score,
			growth_score = excluded.growth_score,
			management_score = excluded.management_score,
			risk_level = excluded.risk_level,
			risk_factors = excluded.risk_factors,
			explanation = excluded.explanation`,
		strings.ToUpper(s.Ticker), s.CalculationDate.Format("2006-01-02"),
		s.ConservativeScore, s.GARPScore, s.DeepValueScore,
		s.ValuationScore, s.QualityScore, s.FinHealthScore,
		s.ProfitabilityScore, s.GrowthScore, s.ManagementScore,
		string(s.RiskLevel), strings.Join(s.RiskFactors, "; "), s.Explanation)
	if err != nil {
		return fmt.Errorf("failed to upsert scores for %s: %w", s.Ticker, err)
	}
	return nil
}

// LatestScores returns the most recent score row for a ticker, or nil.
func (r *Repository) LatestScores(ticker string) (*domain.InvestorScores, error) {
	row := r.db.QueryRow(`
		SELECT ticker, calculation_date,
		       conservative_score, garp_score, deep_value_score,
		       valuation_score, quality_score, fin_health_score,
		       profitability_score, growth_score, management_score,
		       risk_level, risk_factors, explanation
		FROM investor_scores
		WHERE ticker = ?
		ORDER BY calculation_date DESC
		LIMIT 1`,
		strings.ToUpper(ticker))

	var out domain.InvestorScores
	var calcDate, riskLevel, riskFactors string
	err := row.Scan(&out.Ticker, &calcDate,
		&out.ConservativeScore, &out.GARPScore, &out.DeepValueScore,
		&out.ValuationScore, &out.QualityScore, &out.FinHealthScore,
		&out.ProfitabilityScore, &out.GrowthScore, &out.ManagementScore,
		&riskLevel, &riskFactors, &out.Explanation)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scores for %s: %w", ticker, err)
	}

	date, err := time.Parse("2006-01-02", calcDate)
	if err != nil {
		return nil, fmt.Errorf("bad stored calculation date %q: %w", calcDate, err)
	}
	out.CalculationDate = date
	out.RiskLevel = domain.RiskLevel(riskLevel)
	if riskFactors != "" {
		out.RiskFactors = strings.Split(riskFactors, "; ")
	}
	return &out, nil
}

// UpsertEarningsEvents writes calendar events, keyed on
// (ticker, earnings_date).
func (r *Repository) UpsertEarningsEvents(events []domain.EarningsEvent) error {
	if len(events) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO earnings_calendar (ticker, earnings_date, confirmed, eps_estimate,
			                               revenue_estimate, priority_level, data_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (ticker, earnings_date) DO UPDATE SET
				confirmed = excluded.confirmed,
				eps_estimate = excluded.eps_estimate,
				revenue_estimate = excluded.revenue_estimate,
				priority_level = excluded.priority_level`)
		if err != nil {
			return fmt.Errorf("failed to prepare earnings upsert: %w", err)
		}
		defer stmt.Close()

		for _, e := range events {
			if _, err := stmt.Exec(strings.ToUpper(e.Ticker), e.EarningsDate.Format("2006-01-02"),
				e.Confirmed, e.EPSEstimate, e.RevenueEstimate, e.PriorityLevel, e.DataUpdated); err != nil {
				return fmt.Errorf("failed to upsert earnings event %s %s: %w",
					e.Ticker, e.EarningsDate.Format("2006-01-02"), err)
			}
		}
		return nil
	})
}

// EarningsEventsBetween returns calendar events in [from, to] ascending.
func (r *Repository) EarningsEventsBetween(from, to time.Time) ([]domain.EarningsEvent, error) {
	rows, err := r.db.Query(`
		SELECT ticker, earnings_date, confirmed, eps_estimate, revenue_estimate,
		       priority_level, data_updated
		FROM earnings_calendar
		WHERE earnings_date >= ? AND earnings_date <= ?
		ORDER BY earnings_date, ticker`,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query earnings calendar: %w", err)
	}
	defer rows.Close()

	var events []domain.EarningsEvent
	for rows.Next() {
		var e domain.EarningsEvent
		var dateStr string
		if err := rows.Scan(&e.Ticker, &dateStr, &e.Confirmed, &e.EPSEstimate,
			&e.RevenueEstimate, &e.PriorityLevel, &e.DataUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan earnings event: %w", err)
		}
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("bad stored earnings date %q: %w", dateStr, err)
		}
		e.EarningsDate = date
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earnings events: %w", err)
	}
	return events, nil
}

// MarkEarningsDataUpdated flags an event once the post-earnings
// fundamentals refresh for its ticker has run.
func (r *Repository) MarkEarningsDataUpdated(ticker string, earningsDate time.Time) error {
	_, err := r.db.Exec(
		`UPDATE earnings_calendar SET data_updated = 1 WHERE ticker = ? AND earnings_date = ?`,
		strings.ToUpper(ticker), earningsDate.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("failed to mark earnings data updated for %s: %w", ticker, err)
	}
	return nil
}
