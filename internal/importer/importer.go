// Package importer moves transactions in and out of the ledger in
// bulk, in the fixed CSV interchange format: a header row of
// date,category,amount,description with one transaction per line.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"finbook/internal/cache"
	"finbook/internal/core"
	"finbook/internal/ledger"
	"finbook/internal/log"
)

// Columns is the required CSV header, in order. Description may be
// empty but the column must exist.
var Columns = []string{"date", "category", "amount", "description"}

// RowError records one rejected row. Line counts data rows from 1,
// excluding the header.
type RowError struct {
	Line   int
	Reason error
	Detail string
}

func (e RowError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("row %d: %v", e.Line, e.Reason)
	}
	return fmt.Sprintf("row %d: %v: %s", e.Line, e.Reason, e.Detail)
}

// Result reports partial-success import semantics: every valid row is
// committed; every malformed row is skipped and listed here in input
// order.
type Result struct {
	Imported int
	Rejected []RowError
}

type Service struct {
	ledger     *ledger.Service
	logger     *log.Logger
	categories *cache.LRU[int64]
}

func New(ledgerSvc *ledger.Service, logger *log.Logger) *Service {
	s := &Service{
		ledger:     ledgerSvc,
		logger:     logger.WithComponent(log.ComponentImporter),
		categories: cache.NewLRU[int64](256, 5*time.Minute),
	}
	// A rename or delete makes the cached name-to-id mapping wrong
	// immediately, not after the TTL.
	ledgerSvc.RegisterCategoryChangeHook(func(userID int64, kind core.Kind, name string) {
		s.categories.Delete(categoryKey(userID, kind, name))
	})
	return s
}

func categoryKey(userID int64, kind core.Kind, name string) string {
	return fmt.Sprintf("%d/%s/%s", userID, kind, name)
}

// ImportCSV loads rows from r into the user's ledger. Rows are
// independent: one bad row is recorded and skipped, the rest proceed.
// Committed rows are never rolled back, including on cancellation;
// callers should surface a cancelled import as "rows committed so far
// are kept".
func (s *Service) ImportCSV(ctx context.Context, user core.User, kind core.Kind, r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // row shape is validated per row
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read csv header: %w", core.ErrMalformedRow)
	}
	if err := validateHeader(header); err != nil {
		return Result{}, err
	}

	var result Result
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			// Rows committed so far are kept; nothing is rolled back.
			s.logger.WarnContext(ctx, "Import cancelled",
				log.FieldUserID, user.ID,
				log.FieldImported, result.Imported,
				log.FieldRejected, len(result.Rejected))
			return result, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{
				Line: line, Reason: core.ErrMalformedRow, Detail: err.Error(),
			})
			continue
		}

		rowErr, err := s.importRow(ctx, user, kind, line, record)
		if err != nil {
			// Persistence failure, not a row problem: abort the batch
			// but keep the rows committed so far.
			return result, err
		}
		if rowErr != nil {
			result.Rejected = append(result.Rejected, *rowErr)
			continue
		}
		result.Imported++
	}

	s.logger.InfoContext(ctx, "Import finished",
		log.FieldUserID, user.ID,
		log.FieldKind, string(kind),
		log.FieldImported, result.Imported,
		log.FieldRejected, len(result.Rejected))
	return result, nil
}

func (s *Service) importRow(ctx context.Context, user core.User, kind core.Kind, line int, record []string) (*RowError, error) {
	if len(record) < 3 || len(record) > 4 {
		return &RowError{Line: line, Reason: core.ErrMalformedRow,
			Detail: fmt.Sprintf("expected 3 or 4 fields, got %d", len(record))}, nil
	}

	date, err := core.ParseDate(record[0])
	if err != nil {
		return &RowError{Line: line, Reason: core.ErrInvalidDate, Detail: record[0]}, nil
	}

	categoryName := strings.TrimSpace(record[1])
	if categoryName == "" {
		return &RowError{Line: line, Reason: core.ErrMalformedRow, Detail: "empty category"}, nil
	}

	amount, err := core.ParseMoney(record[2])
	if err != nil {
		return &RowError{Line: line, Reason: core.ErrInvalidAmount, Detail: record[2]}, nil
	}

	description := ""
	if len(record) == 4 {
		description = record[3]
	}

	categoryID, err := s.lookupOrCreateCategory(ctx, user, kind, categoryName)
	if err != nil {
		if errors.Is(err, core.ErrStoreUnavailable) {
			return nil, err
		}
		return &RowError{Line: line, Reason: core.ErrMalformedRow, Detail: err.Error()}, nil
	}

	if _, err := s.ledger.AddTransaction(ctx, user, kind, categoryID, amount, date, description); err != nil {
		if errors.Is(err, core.ErrStoreUnavailable) {
			return nil, err
		}
		return &RowError{Line: line, Reason: core.ErrMalformedRow, Detail: err.Error()}, nil
	}
	return nil, nil
}

// lookupOrCreateCategory resolves the named category, lazily creating
// it on first use. Hits are served from the LRU so large imports touch
// the store once per distinct category.
func (s *Service) lookupOrCreateCategory(ctx context.Context, user core.User, kind core.Kind, name string) (int64, error) {
	key := categoryKey(user.ID, kind, name)
	if id, ok := s.categories.Get(key); ok {
		return id, nil
	}

	category, err := s.ledger.EnsureCategory(ctx, user, kind, name)
	if err != nil {
		return 0, err
	}
	s.categories.Set(key, category.ID)
	return category.ID, nil
}

// ExportCSV writes the matching transactions to w in the import
// format, ordered exactly like ListTransactions, so export followed by
// import reproduces an equivalent transaction set.
func (s *Service) ExportCSV(ctx context.Context, user core.User, kind core.Kind, dateRange *core.DateRange, w io.Writer) error {
	transactions, err := s.ledger.ListTransactions(ctx, user, kind, dateRange)
	if err != nil {
		return err
	}

	categories, err := s.ledger.ListCategories(ctx, user, kind)
	if err != nil {
		return err
	}
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range transactions {
		record := []string{t.Date.String(), names[t.CategoryID], t.Amount.String(), t.Description}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	s.logger.InfoContext(ctx, "Export finished",
		log.FieldUserID, user.ID,
		log.FieldKind, string(kind),
		log.FieldRowCount, len(transactions))
	return nil
}

func validateHeader(header []string) error {
	if len(header) != len(Columns) {
		return fmt.Errorf("csv header must be %q: %w", strings.Join(Columns, ","), core.ErrMalformedRow)
	}
	for i, col := range Columns {
		if !strings.EqualFold(strings.TrimSpace(header[i]), col) {
			return fmt.Errorf("csv header must be %q: %w", strings.Join(Columns, ","), core.ErrMalformedRow)
		}
	}
	return nil
}
