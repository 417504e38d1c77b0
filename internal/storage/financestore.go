package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"finbook/internal/core"
)

// FinanceStore persists categories and transactions. All mutations are
// serialized behind a single writer mutex; the database runs in WAL
// mode, so reads see a stable snapshot while a write is in flight.
// Aggregations that issue more than one query run inside a single read
// transaction so the pieces come from the same snapshot.
type FinanceStore struct {
	db *sql.DB
	mu sync.Mutex // single-writer discipline for all mutations
}

func OpenFinanceStore(dbPath string) (*FinanceStore, error) {
	db, err := openDB(dbPath, "finance")
	if err != nil {
		return nil, fmt.Errorf("open finance store: %w", err)
	}
	return &FinanceStore{db: db}, nil
}

func (s *FinanceStore) Close() error {
	return s.db.Close()
}

// CreateCategory inserts a category; (user, kind, name) must be unique.
func (s *FinanceStore) CreateCategory(ctx context.Context, userID int64, name string, kind core.Kind) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO categories (user_id, name, kind) VALUES (?, ?, ?)",
		userID, name, string(kind),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, fmt.Errorf("create category: %w", core.ErrDuplicateCategory)
		}
		return core.Category{}, storeErr("create category", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, storeErr("create category id", err)
	}

	return core.Category{ID: id, UserID: userID, Name: name, Kind: kind}, nil
}

// GetCategory returns a category only if it belongs to the user.
func (s *FinanceStore) GetCategory(ctx context.Context, userID, id int64) (core.Category, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, kind FROM categories WHERE id = ? AND user_id = ?",
		id, userID,
	)
	return scanCategory(row)
}

// GetCategoryByName looks a category up by its unique (kind, name) key.
func (s *FinanceStore) GetCategoryByName(ctx context.Context, userID int64, kind core.Kind, name string) (core.Category, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, kind FROM categories WHERE user_id = ? AND kind = ? AND name = ?",
		userID, string(kind), name,
	)
	return scanCategory(row)
}

// ListCategories returns the user's categories of one kind, by name.
func (s *FinanceStore) ListCategories(ctx context.Context, userID int64, kind core.Kind) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, name, kind FROM categories WHERE user_id = ? AND kind = ? ORDER BY name ASC",
		userID, string(kind),
	)
	if err != nil {
		return nil, storeErr("list categories", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		var kindStr string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &kindStr); err != nil {
			return nil, storeErr("scan category", err)
		}
		c.Kind = core.Kind(kindStr)
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list categories", err)
	}
	return categories, nil
}

// RenameCategory renames in place; referencing transactions follow the
// id and stay valid.
func (s *FinanceStore) RenameCategory(ctx context.Context, userID, id int64, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE categories SET name = ? WHERE id = ? AND user_id = ?",
		newName, id, userID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rename category: %w", core.ErrDuplicateCategory)
		}
		return storeErr("rename category", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rename category", err)
	}
	if n == 0 {
		return fmt.Errorf("rename category: %w", core.ErrNotFound)
	}
	return nil
}

// DeleteCategory removes a category in one transaction, reassigning
// any referencing transactions to reassignTo first. With a nil
// reassignTo and live references it fails with ErrCategoryInUse:
// deletion never leaves a dangling category_id.
func (s *FinanceStore) DeleteCategory(ctx context.Context, userID, id int64, reassignTo *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin delete category", err)
	}
	defer tx.Rollback()

	var kind string
	err = tx.QueryRowContext(ctx,
		"SELECT kind FROM categories WHERE id = ? AND user_id = ?",
		id, userID,
	).Scan(&kind)
	if err != nil {
		return storeErr("delete category", err)
	}

	// The target is verified inside this transaction: a check done
	// earlier by the caller can go stale if the target is deleted in
	// between, and a reassignment to a vanished or wrong-kind category
	// must never commit.
	if reassignTo != nil {
		if *reassignTo == id {
			return fmt.Errorf("delete category: reassignment target is the category itself: %w", core.ErrCategoryMismatch)
		}
		var targetKind string
		err = tx.QueryRowContext(ctx,
			"SELECT kind FROM categories WHERE id = ? AND user_id = ?",
			*reassignTo, userID,
		).Scan(&targetKind)
		if err != nil {
			return fmt.Errorf("reassignment target: %w", storeErr("delete category", err))
		}
		if targetKind != kind {
			return fmt.Errorf("delete category: %w", core.ErrCategoryMismatch)
		}
	}

	var refs int64
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE category_id = ? AND user_id = ?",
		id, userID,
	).Scan(&refs)
	if err != nil {
		return storeErr("count category references", err)
	}

	if refs > 0 {
		if reassignTo == nil {
			return fmt.Errorf("delete category: %w", core.ErrCategoryInUse)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE transactions SET category_id = ? WHERE category_id = ? AND user_id = ?",
			*reassignTo, id, userID,
		); err != nil {
			return storeErr("reassign transactions", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM categories WHERE id = ? AND user_id = ?",
		id, userID,
	)
	if err != nil {
		return storeErr("delete category", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete category", err)
	}
	if n == 0 {
		return fmt.Errorf("delete category: %w", core.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit delete category", err)
	}
	return nil
}

// InsertTransaction stores a validated transaction and returns it with
// its assigned id.
func (s *FinanceStore) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO transactions (user_id, category_id, kind, amount_cents, date, description) VALUES (?, ?, ?, ?, ?, ?)",
		t.UserID, t.CategoryID, string(t.Kind), t.Amount.Cents, t.Date.String(), t.Description,
	)
	if err != nil {
		return core.Transaction{}, storeErr("insert transaction", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, storeErr("insert transaction id", err)
	}
	t.ID = id
	return t, nil
}

// ListTransactions returns a user's transactions of one kind, date
// ascending with insertion order as the tie-break. A nil range means
// no date filter.
func (s *FinanceStore) ListTransactions(ctx context.Context, userID int64, kind core.Kind, dateRange *core.DateRange) ([]core.Transaction, error) {
	query := "SELECT id, user_id, category_id, kind, amount_cents, date, description FROM transactions WHERE user_id = ? AND kind = ?"
	args := []any{userID, string(kind)}
	query, args = appendDateFilter(query, args, dateRange)
	query += " ORDER BY date ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list transactions", err)
	}
	defer rows.Close()

	var transactions []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var kindStr, dateStr string
		if err := rows.Scan(&t.ID, &t.UserID, &t.CategoryID, &kindStr, &t.Amount.Cents, &dateStr, &t.Description); err != nil {
			return nil, storeErr("scan transaction", err)
		}
		t.Kind = core.Kind(kindStr)
		d, err := core.ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("stored date %q: %w", dateStr, err)
		}
		t.Date = d
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list transactions", err)
	}
	return transactions, nil
}

// DeleteTransaction removes a single transaction owned by the user.
func (s *FinanceStore) DeleteTransaction(ctx context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM transactions WHERE id = ? AND user_id = ?",
		id, userID,
	)
	if err != nil {
		return storeErr("delete transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete transaction", err)
	}
	if n == 0 {
		return fmt.Errorf("delete transaction: %w", core.ErrNotFound)
	}
	return nil
}

// querier abstracts *sql.DB and *sql.Tx for read helpers.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SumByKind totals one kind over an optional date window.
func (s *FinanceStore) SumByKind(ctx context.Context, userID int64, kind core.Kind, dateRange *core.DateRange) (core.Money, error) {
	return sumKind(ctx, s.db, userID, kind, dateRange)
}

// SumIncomeExpense totals both kinds in one read transaction, so the
// pair always reflects a single snapshot of the ledger even while a
// write is landing between the two sums.
func (s *FinanceStore) SumIncomeExpense(ctx context.Context, userID int64, dateRange *core.DateRange) (income, expense core.Money, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Money{}, core.Money{}, storeErr("begin summary read", err)
	}
	defer tx.Rollback()

	income, err = sumKind(ctx, tx, userID, core.Income, dateRange)
	if err != nil {
		return core.Money{}, core.Money{}, err
	}
	expense, err = sumKind(ctx, tx, userID, core.Expense, dateRange)
	if err != nil {
		return core.Money{}, core.Money{}, err
	}
	return income, expense, nil
}

func sumKind(ctx context.Context, q querier, userID int64, kind core.Kind, dateRange *core.DateRange) (core.Money, error) {
	query := "SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE user_id = ? AND kind = ?"
	args := []any{userID, string(kind)}
	query, args = appendDateFilter(query, args, dateRange)

	var cents int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&cents); err != nil {
		return core.Money{}, storeErr("sum by kind", err)
	}
	return core.Money{Cents: cents}, nil
}

// SumByCategory groups totals by category name, largest first with
// name as the deterministic tie-break. Categories with no matching
// transactions are omitted.
func (s *FinanceStore) SumByCategory(ctx context.Context, userID int64, kind core.Kind, dateRange *core.DateRange) ([]core.CategoryTotal, error) {
	query := `SELECT c.name, SUM(t.amount_cents) AS total
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ? AND t.kind = ?`
	args := []any{userID, string(kind)}
	query, args = appendPrefixedDateFilter(query, args, dateRange)
	query += " GROUP BY c.name ORDER BY total DESC, c.name ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("sum by category", err)
	}
	defer rows.Close()

	var totals []core.CategoryTotal
	for rows.Next() {
		var ct core.CategoryTotal
		if err := rows.Scan(&ct.Name, &ct.Total.Cents); err != nil {
			return nil, storeErr("scan category total", err)
		}
		totals = append(totals, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("sum by category", err)
	}
	return totals, nil
}

// SumByMonth groups totals by YYYY-MM month key in chronological
// order. Months with no activity are omitted.
func (s *FinanceStore) SumByMonth(ctx context.Context, userID int64, kind core.Kind, dateRange *core.DateRange) ([]core.MonthTotal, error) {
	return sumByMonth(ctx, s.db, userID, kind, dateRange)
}

// SumMonthFlows returns the per-month income and expense series from
// one read transaction, on the same snapshot.
func (s *FinanceStore) SumMonthFlows(ctx context.Context, userID int64, dateRange *core.DateRange) (income, expense []core.MonthTotal, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, storeErr("begin month flows read", err)
	}
	defer tx.Rollback()

	income, err = sumByMonth(ctx, tx, userID, core.Income, dateRange)
	if err != nil {
		return nil, nil, err
	}
	expense, err = sumByMonth(ctx, tx, userID, core.Expense, dateRange)
	if err != nil {
		return nil, nil, err
	}
	return income, expense, nil
}

func sumByMonth(ctx context.Context, q querier, userID int64, kind core.Kind, dateRange *core.DateRange) ([]core.MonthTotal, error) {
	query := "SELECT substr(date, 1, 7) AS month, SUM(amount_cents) FROM transactions WHERE user_id = ? AND kind = ?"
	args := []any{userID, string(kind)}
	query, args = appendDateFilter(query, args, dateRange)
	query += " GROUP BY month ORDER BY month ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("sum by month", err)
	}
	defer rows.Close()

	var totals []core.MonthTotal
	for rows.Next() {
		var mt core.MonthTotal
		if err := rows.Scan(&mt.Month, &mt.Total.Cents); err != nil {
			return nil, storeErr("scan month total", err)
		}
		totals = append(totals, mt)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("sum by month", err)
	}
	return totals, nil
}

// CountTransactionsByCategory reports how many transactions still
// reference a category.
func (s *FinanceStore) CountTransactionsByCategory(ctx context.Context, userID, categoryID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE category_id = ? AND user_id = ?",
		categoryID, userID,
	).Scan(&n)
	if err != nil {
		return 0, storeErr("count transactions by category", err)
	}
	return n, nil
}

func scanCategory(row *sql.Row) (core.Category, error) {
	var c core.Category
	var kindStr string
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &kindStr); err != nil {
		return core.Category{}, storeErr("get category", err)
	}
	c.Kind = core.Kind(kindStr)
	return c, nil
}

// Dates are stored as YYYY-MM-DD text, so lexical BETWEEN matches
// calendar order and the range stays inclusive on both ends.
func appendDateFilter(query string, args []any, r *core.DateRange) (string, []any) {
	if r == nil {
		return query, args
	}
	query += " AND date BETWEEN ? AND ?"
	args = append(args, r.Start.String(), r.End.String())
	return query, args
}

func appendPrefixedDateFilter(query string, args []any, r *core.DateRange) (string, []any) {
	if r == nil {
		return query, args
	}
	query += " AND t.date BETWEEN ? AND ?"
	args = append(args, r.Start.String(), r.End.String())
	return query, args
}
