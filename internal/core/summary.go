package core

// CategoryTotal is an amount aggregated under one category name.
type CategoryTotal struct {
	Name  string
	Total Money
}

// MonthTotal is an amount aggregated under one YYYY-MM month key.
type MonthTotal struct {
	Month string
	Total Money
}

// BudgetSummary totals one user's activity over a date window.
type BudgetSummary struct {
	Income  Money
	Expense Money
	Net     Money
}

// MonthFlow is the per-month income/expense/net triple used for cash
// flow reporting. Month keys align with MonthTotal.
type MonthFlow struct {
	Month   string
	Income  Money
	Expense Money
	Net     Money
}
