// Package reports computes read-only aggregations over the
// transaction ledger: budget summaries, category breakdowns, and
// monthly trends. Nothing in this package mutates ledger state, so
// every operation is safe to run concurrently with the others.
//
// Months with no activity are omitted from ByMonth and CashFlow
// (sparse series); both views share the same YYYY-MM keys so charts
// drawn from them line up.
package reports

import (
	"context"
	"fmt"
	"sort"

	"finbook/internal/core"
	"finbook/internal/log"
	"finbook/internal/storage"
)

type Service struct {
	store  *storage.FinanceStore
	logger *log.Logger
}

func New(store *storage.FinanceStore, logger *log.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.WithComponent(log.ComponentReports),
	}
}

// BudgetSummary sums all income and expense within the inclusive
// [start, end] window. An empty window yields all-zero totals, not an
// error.
func (s *Service) BudgetSummary(ctx context.Context, user core.User, start, end core.Date) (core.BudgetSummary, error) {
	dateRange := &core.DateRange{Start: start, End: end}
	if err := dateRange.Validate(); err != nil {
		return core.BudgetSummary{}, fmt.Errorf("budget summary: %w", err)
	}

	// Both sums come from one read snapshot, so income, expense, and
	// net always describe the same ledger state.
	income, expense, err := s.store.SumIncomeExpense(ctx, user.ID, dateRange)
	if err != nil {
		return core.BudgetSummary{}, err
	}

	return core.BudgetSummary{
		Income:  income,
		Expense: expense,
		Net:     income.Sub(expense),
	}, nil
}

// ByCategory sums one kind's amounts grouped by category name, largest
// total first with name as the tie-break. Categories with no matching
// transactions in range are omitted.
func (s *Service) ByCategory(ctx context.Context, user core.User, kind core.Kind, dateRange *core.DateRange) ([]core.CategoryTotal, error) {
	if dateRange != nil {
		if err := dateRange.Validate(); err != nil {
			return nil, fmt.Errorf("by category: %w", err)
		}
	}
	return s.store.SumByCategory(ctx, user.ID, kind, dateRange)
}

// ByMonth sums one kind's amounts grouped by calendar month in
// chronological order. The series is sparse: months without activity
// do not appear.
func (s *Service) ByMonth(ctx context.Context, user core.User, kind core.Kind, dateRange *core.DateRange) ([]core.MonthTotal, error) {
	if dateRange != nil {
		if err := dateRange.Validate(); err != nil {
			return nil, fmt.Errorf("by month: %w", err)
		}
	}
	return s.store.SumByMonth(ctx, user.ID, kind, dateRange)
}

// TopCategories is ByCategory truncated to the limit. The underlying
// ordering (total descending, name ascending) already makes the
// truncation deterministic.
func (s *Service) TopCategories(ctx context.Context, user core.User, kind core.Kind, dateRange *core.DateRange, limit int) ([]core.CategoryTotal, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("top categories: limit must be positive, got %d", limit)
	}
	totals, err := s.ByCategory(ctx, user, kind, dateRange)
	if err != nil {
		return nil, err
	}
	if len(totals) > limit {
		totals = totals[:limit]
	}
	return totals, nil
}

// CashFlow merges the monthly income and expense series into
// per-month (income, expense, net) triples on the same month keys as
// ByMonth.
func (s *Service) CashFlow(ctx context.Context, user core.User, dateRange *core.DateRange) ([]core.MonthFlow, error) {
	if dateRange != nil {
		if err := dateRange.Validate(); err != nil {
			return nil, fmt.Errorf("cash flow: %w", err)
		}
	}

	income, expense, err := s.store.SumMonthFlows(ctx, user.ID, dateRange)
	if err != nil {
		return nil, err
	}

	byMonth := make(map[string]*core.MonthFlow, len(income)+len(expense))
	for _, mt := range income {
		byMonth[mt.Month] = &core.MonthFlow{Month: mt.Month, Income: mt.Total}
	}
	for _, mt := range expense {
		flow, ok := byMonth[mt.Month]
		if !ok {
			flow = &core.MonthFlow{Month: mt.Month}
			byMonth[mt.Month] = flow
		}
		flow.Expense = mt.Total
	}

	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months) // YYYY-MM keys sort chronologically

	flows := make([]core.MonthFlow, 0, len(months))
	for _, month := range months {
		flow := byMonth[month]
		flow.Net = flow.Income.Sub(flow.Expense)
		flows = append(flows, *flow)
	}

	s.logger.DebugContext(ctx, "Cash flow computed",
		log.FieldUserID, user.ID, log.FieldRowCount, len(flows))
	return flows, nil
}
