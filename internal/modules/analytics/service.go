package analytics

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/domain"
	"github.com/sanbist/papertrader/internal/modules/market"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
	"github.com/shopspring/decimal"
)

// ValuationReader loads a user's state priced against the cached snapshot
type ValuationReader interface {
	GetValuation(ctx context.Context, userID string) (portfolio.ValuedState, error)
}

var _ ValuationReader = (*portfolio.Service)(nil)

// Service answers analytics queries for one user at a time. It only reads.
type Service struct {
	portfolios     ValuationReader
	prices         portfolio.SnapshotSource
	baseCurrency   domain.Currency
	initialBalance decimal.Decimal
	location       *time.Location
	log            zerolog.Logger
}

// NewService creates a new analytics service. Monthly buckets use loc.
func NewService(
	portfolios ValuationReader,
	prices portfolio.SnapshotSource,
	baseCurrency domain.Currency,
	initialBalance decimal.Decimal,
	loc *time.Location,
	log zerolog.Logger,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		portfolios:     portfolios,
		prices:         prices,
		baseCurrency:   baseCurrency,
		initialBalance: initialBalance,
		location:       loc,
		log:            log.With().Str("service", "analytics").Logger(),
	}
}

// GetSummary returns the headline figures for the account
func (s *Service) GetSummary(ctx context.Context, userID string) (Summary, error) {
	vs, err := s.portfolios.GetValuation(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(vs.State, vs.Valuation, s.initialBalance), nil
}

// GetAllocation returns positions and cash as shares of total assets
func (s *Service) GetAllocation(ctx context.Context, userID string) (Allocation, error) {
	vs, err := s.portfolios.GetValuation(ctx, userID)
	if err != nil {
		return Allocation{}, err
	}
	return BuildAllocation(vs.Valuation, vs.State.Balance.InexactFloat64()), nil
}

// GetRisk returns the concentration analysis
func (s *Service) GetRisk(ctx context.Context, userID string) (RiskAnalysis, error) {
	vs, err := s.portfolios.GetValuation(ctx, userID)
	if err != nil {
		return RiskAnalysis{}, err
	}
	return AnalyzeRisk(vs.Valuation, vs.State.Balance.InexactFloat64()), nil
}

// GetPerformers ranks positions by profit and loss
func (s *Service) GetPerformers(ctx context.Context, userID string) (Performers, error) {
	vs, err := s.portfolios.GetValuation(ctx, userID)
	if err != nil {
		return Performers{}, err
	}
	return RankPerformers(vs.Valuation), nil
}

// GetMonthly returns trading activity per month
func (s *Service) GetMonthly(ctx context.Context, userID string) ([]MonthlyActivity, error) {
	vs, err := s.portfolios.GetValuation(ctx, userID)
	if err != nil {
		return nil, err
	}
	return MonthlyPerformance(vs.State.Portfolio.Transactions, s.location), nil
}

// GetCommission totals fees paid
func (s *Service) GetCommission(ctx context.Context, userID string) (CommissionSummary, error) {
	vs, err := s.portfolios.GetValuation(ctx, userID)
	if err != nil {
		return CommissionSummary{}, err
	}
	return SummarizeCommission(vs.State.Portfolio.Transactions), nil
}

// GetSuggestions proposes unheld instruments that are rising
func (s *Service) GetSuggestions(ctx context.Context, userID string) (Suggestions, error) {
	vs, err := s.portfolios.GetValuation(ctx, userID)
	if err != nil {
		return Suggestions{}, err
	}

	var snap market.Snapshot
	if s.prices != nil {
		snap = s.prices.Current()
	}
	out := Suggest(snap, vs.State.Portfolio, vs.State.Balance.InexactFloat64(), s.baseCurrency)
	s.log.Debug().
		Str("user_id", userID).
		Int("suggestions", len(out.Suggestions)).
		Msg("Built suggestions")
	return out, nil
}

// GetRecentTransactions returns the n most recent transactions
func (s *Service) GetRecentTransactions(ctx context.Context, userID string, n int) ([]portfolio.Transaction, error) {
	vs, err := s.portfolios.GetValuation(ctx, userID)
	if err != nil {
		return nil, err
	}
	return RecentTransactions(vs.State.Portfolio.Transactions, n), nil
}
