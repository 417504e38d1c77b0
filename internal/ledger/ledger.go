// Package ledger implements the category and transaction ledgers: all
// user-initiated CRUD on finance data, with referential integrity
// enforced at this boundary.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"finbook/internal/core"
	"finbook/internal/log"
	"finbook/internal/storage"
)

// Default category sets seeded for new users.
var (
	DefaultExpenseCategories = []string{"Food", "Transportation", "Utilities", "Entertainment", "Healthcare", "Other"}
	DefaultIncomeCategories  = []string{"Salary/Wages", "Investment Income", "Reimbursement", "Gifts"}
)

type Service struct {
	store  *storage.FinanceStore
	logger *log.Logger

	mu            sync.RWMutex
	categoryHooks []func(userID int64, kind core.Kind, name string)
}

func New(store *storage.FinanceStore, logger *log.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.WithComponent(log.ComponentLedger),
	}
}

// RegisterCategoryChangeHook adds a callback fired whenever a category
// name stops resolving to the category it used to, that is on rename
// and on delete. Name-to-id caches hang off this to drop stale entries.
func (s *Service) RegisterCategoryChangeHook(fn func(userID int64, kind core.Kind, name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categoryHooks = append(s.categoryHooks, fn)
}

func (s *Service) notifyCategoryChange(userID int64, kind core.Kind, name string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.categoryHooks {
		fn(userID, kind, name)
	}
}

// CreateCategory inserts a new category for the user.
func (s *Service) CreateCategory(ctx context.Context, user core.User, name string, kind core.Kind) (core.Category, error) {
	c := core.Category{UserID: user.ID, Name: strings.TrimSpace(name), Kind: kind}
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}

	created, err := s.store.CreateCategory(ctx, user.ID, c.Name, c.Kind)
	if err != nil {
		return core.Category{}, err
	}

	s.logger.InfoContext(ctx, "Category created",
		log.FieldUserID, user.ID, log.FieldCategory, created.Name, log.FieldKind, string(kind))
	return created, nil
}

// ListCategories returns the user's categories of one kind, ordered by
// name.
func (s *Service) ListCategories(ctx context.Context, user core.User, kind core.Kind) ([]core.Category, error) {
	return s.store.ListCategories(ctx, user.ID, kind)
}

// RenameCategory renames in place. Referencing transactions stay valid
// because they hold the category id, not the name.
func (s *Service) RenameCategory(ctx context.Context, user core.User, categoryID int64, newName string) error {
	current, err := s.store.GetCategory(ctx, user.ID, categoryID)
	if err != nil {
		return err
	}

	renamed := core.Category{UserID: user.ID, Name: strings.TrimSpace(newName), Kind: current.Kind}
	if err := renamed.Validate(); err != nil {
		return fmt.Errorf("rename category: %w", err)
	}

	if err := s.store.RenameCategory(ctx, user.ID, categoryID, renamed.Name); err != nil {
		return err
	}
	s.notifyCategoryChange(user.ID, current.Kind, current.Name)

	s.logger.InfoContext(ctx, "Category renamed",
		log.FieldUserID, user.ID, log.FieldCategoryID, categoryID, log.FieldCategory, renamed.Name)
	return nil
}

// DeleteCategory deletes a category. If transactions still reference
// it, reassignTo must name a surviving category of the same kind and
// user; without one the call fails with ErrCategoryInUse.
func (s *Service) DeleteCategory(ctx context.Context, user core.User, categoryID int64, reassignTo *int64) error {
	category, err := s.store.GetCategory(ctx, user.ID, categoryID)
	if err != nil {
		return err
	}

	if reassignTo != nil {
		if *reassignTo == categoryID {
			return fmt.Errorf("delete category: reassignment target is the category itself: %w", core.ErrCategoryMismatch)
		}
		target, err := s.store.GetCategory(ctx, user.ID, *reassignTo)
		if err != nil {
			return fmt.Errorf("reassignment target: %w", err)
		}
		if target.Kind != category.Kind {
			return fmt.Errorf("delete category: %w", core.ErrCategoryMismatch)
		}
	}

	if err := s.store.DeleteCategory(ctx, user.ID, categoryID, reassignTo); err != nil {
		return err
	}
	s.notifyCategoryChange(user.ID, category.Kind, category.Name)

	s.logger.InfoContext(ctx, "Category deleted",
		log.FieldUserID, user.ID, log.FieldCategoryID, categoryID, log.FieldCategory, category.Name)
	return nil
}

// CountCategoryReferences reports how many transactions reference the
// category, for callers deciding whether a delete needs a reassignment
// target.
func (s *Service) CountCategoryReferences(ctx context.Context, user core.User, categoryID int64) (int64, error) {
	if _, err := s.store.GetCategory(ctx, user.ID, categoryID); err != nil {
		return 0, err
	}
	return s.store.CountTransactionsByCategory(ctx, user.ID, categoryID)
}

// EnsureCategory returns the named category, creating it if missing.
// This is the importer's lazy-creation path; it never produces
// duplicates under the single-writer discipline.
func (s *Service) EnsureCategory(ctx context.Context, user core.User, kind core.Kind, name string) (core.Category, error) {
	name = strings.TrimSpace(name)
	category, err := s.store.GetCategoryByName(ctx, user.ID, kind, name)
	if err == nil {
		return category, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Category{}, err
	}

	created, err := s.CreateCategory(ctx, user, name, kind)
	if errors.Is(err, core.ErrDuplicateCategory) {
		// Lost a race with another writer; the category now exists.
		return s.store.GetCategoryByName(ctx, user.ID, kind, name)
	}
	return created, err
}

// EnsureDefaults idempotently seeds the stock category sets for a
// user. Called on registration so manual entry has something to pick
// from.
func (s *Service) EnsureDefaults(ctx context.Context, user core.User) error {
	for kind, names := range map[core.Kind][]string{
		core.Expense: DefaultExpenseCategories,
		core.Income:  DefaultIncomeCategories,
	} {
		for _, name := range names {
			if _, err := s.EnsureCategory(ctx, user, kind, name); err != nil {
				return fmt.Errorf("seed default categories: %w", err)
			}
		}
	}
	return nil
}

// AddTransaction validates and inserts a transaction. The category
// must belong to the user and match the transaction kind.
func (s *Service) AddTransaction(ctx context.Context, user core.User, kind core.Kind, categoryID int64, amount core.Money, date core.Date, description string) (core.Transaction, error) {
	t := core.Transaction{
		UserID:      user.ID,
		CategoryID:  categoryID,
		Kind:        kind,
		Amount:      amount,
		Date:        date,
		Description: strings.TrimSpace(description),
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}

	category, err := s.store.GetCategory(ctx, user.ID, categoryID)
	if err != nil {
		return core.Transaction{}, err
	}
	if category.Kind != kind {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", core.ErrCategoryMismatch)
	}

	created, err := s.store.InsertTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction added",
		log.FieldUserID, user.ID,
		log.FieldKind, string(kind),
		log.FieldCategory, category.Name,
		log.FieldAmountCents, amount.Cents,
		log.FieldDate, date.String())
	return created, nil
}

// ListTransactions returns the user's transactions of one kind,
// optionally filtered to an inclusive date window, date ascending with
// insertion order as tie-break.
func (s *Service) ListTransactions(ctx context.Context, user core.User, kind core.Kind, dateRange *core.DateRange) ([]core.Transaction, error) {
	if dateRange != nil {
		if err := dateRange.Validate(); err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
	}
	return s.store.ListTransactions(ctx, user.ID, kind, dateRange)
}

// DeleteTransaction removes a single transaction. Editing is
// delete+recreate; there is no in-place update path.
func (s *Service) DeleteTransaction(ctx context.Context, user core.User, transactionID int64) error {
	if err := s.store.DeleteTransaction(ctx, user.ID, transactionID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldUserID, user.ID, "transaction_id", transactionID)
	return nil
}
