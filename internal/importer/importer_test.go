package importer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"finbook/internal/core"
	"finbook/internal/ledger"
	"finbook/internal/log"
	"finbook/internal/storage"
)

type ImporterTestSuite struct {
	suite.Suite
	store  *storage.FinanceStore
	ledger *ledger.Service
	svc    *Service
	user   core.User
	ctx    context.Context
}

func (s *ImporterTestSuite) SetupTest() {
	store, err := storage.OpenFinanceStore(filepath.Join(s.T().TempDir(), "finance.db"))
	require.NoError(s.T(), err)
	s.store = store
	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	s.ledger = ledger.New(store, logger)
	s.svc = New(s.ledger, logger)
	s.user = core.User{ID: 1, Username: "alice"}
	s.ctx = context.Background()
}

func (s *ImporterTestSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *ImporterTestSuite) TestImportMixedRows() {
	csv := strings.Join([]string{
		"date,category,amount,description",
		"2024-01-05,Food,40.00,groceries",
		"not-a-date,Food,10.00,bad date",
		"2024-01-06,Food,-5.00,bad amount",
		"2024-01-07,,10.00,empty category",
		"2024-01-08,Transport,12.50,bus pass",
	}, "\n")

	result, err := s.svc.ImportCSV(s.ctx, s.user, core.Expense, strings.NewReader(csv))
	require.NoError(s.T(), err)

	assert.Equal(s.T(), 2, result.Imported)
	require.Len(s.T(), result.Rejected, 3)

	// Rejections come back in input order, lines counted from the first
	// data row.
	assert.Equal(s.T(), 2, result.Rejected[0].Line)
	assert.ErrorIs(s.T(), result.Rejected[0].Reason, core.ErrInvalidDate)
	assert.Equal(s.T(), 3, result.Rejected[1].Line)
	assert.ErrorIs(s.T(), result.Rejected[1].Reason, core.ErrInvalidAmount)
	assert.Equal(s.T(), 4, result.Rejected[2].Line)
	assert.ErrorIs(s.T(), result.Rejected[2].Reason, core.ErrMalformedRow)

	listed, err := s.ledger.ListTransactions(s.ctx, s.user, core.Expense, nil)
	require.NoError(s.T(), err)
	assert.Len(s.T(), listed, 2)
}

func (s *ImporterTestSuite) TestImportCreatesCategoriesOnce() {
	csv := strings.Join([]string{
		"date,category,amount,description",
		"2024-01-05,Food,40.00,",
		"2024-01-06,Food,10.00,",
		"2024-01-07,Food,5.00,",
		"2024-01-08,Transport,12.50,",
	}, "\n")

	result, err := s.svc.ImportCSV(s.ctx, s.user, core.Expense, strings.NewReader(csv))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 4, result.Imported)

	categories, err := s.ledger.ListCategories(s.ctx, s.user, core.Expense)
	require.NoError(s.T(), err)
	require.Len(s.T(), categories, 2)
	assert.Equal(s.T(), "Food", categories[0].Name)
	assert.Equal(s.T(), "Transport", categories[1].Name)
}

func (s *ImporterTestSuite) TestImportAfterRenameCreatesFreshCategory() {
	first := "date,category,amount,description\n2024-01-05,Food,40.00,"
	result, err := s.svc.ImportCSV(s.ctx, s.user, core.Expense, strings.NewReader(first))
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, result.Imported)

	food, err := s.ledger.ListCategories(s.ctx, s.user, core.Expense)
	require.NoError(s.T(), err)
	require.Len(s.T(), food, 1)
	oldID := food[0].ID

	require.NoError(s.T(), s.ledger.RenameCategory(s.ctx, s.user, oldID, "Groceries"))

	// "Food" no longer names the renamed category; the next import must
	// create a fresh one instead of reusing the cached id.
	second := "date,category,amount,description\n2024-01-06,Food,10.00,"
	result, err = s.svc.ImportCSV(s.ctx, s.user, core.Expense, strings.NewReader(second))
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, result.Imported)

	fresh, err := s.ledger.ListCategories(s.ctx, s.user, core.Expense)
	require.NoError(s.T(), err)
	require.Len(s.T(), fresh, 2)

	byName := make(map[string]int64, len(fresh))
	for _, c := range fresh {
		byName[c.Name] = c.ID
	}
	assert.Equal(s.T(), oldID, byName["Groceries"])
	assert.NotEqual(s.T(), oldID, byName["Food"])

	transactions, err := s.ledger.ListTransactions(s.ctx, s.user, core.Expense, nil)
	require.NoError(s.T(), err)
	require.Len(s.T(), transactions, 2)
	assert.Equal(s.T(), oldID, transactions[0].CategoryID)
	assert.Equal(s.T(), byName["Food"], transactions[1].CategoryID)
}

func (s *ImporterTestSuite) TestImportAfterDeleteCreatesFreshCategory() {
	first := "date,category,amount,description\n2024-01-05,Food,40.00,"
	result, err := s.svc.ImportCSV(s.ctx, s.user, core.Expense, strings.NewReader(first))
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, result.Imported)

	other, err := s.ledger.CreateCategory(s.ctx, s.user, "Other", core.Expense)
	require.NoError(s.T(), err)
	food, err := s.ledger.ListCategories(s.ctx, s.user, core.Expense)
	require.NoError(s.T(), err)
	var foodID int64
	for _, c := range food {
		if c.Name == "Food" {
			foodID = c.ID
		}
	}
	require.NoError(s.T(), s.ledger.DeleteCategory(s.ctx, s.user, foodID, &other.ID))

	second := "date,category,amount,description\n2024-01-06,Food,10.00,"
	result, err = s.svc.ImportCSV(s.ctx, s.user, core.Expense, strings.NewReader(second))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, result.Imported, "a stale cache entry would reject this row instead")
	assert.Empty(s.T(), result.Rejected)

	recreated, err := s.ledger.ListCategories(s.ctx, s.user, core.Expense)
	require.NoError(s.T(), err)
	names := make([]string, 0, len(recreated))
	for _, c := range recreated {
		assert.NotEqual(s.T(), foodID, c.ID)
		names = append(names, c.Name)
	}
	assert.ElementsMatch(s.T(), []string{"Food", "Other"}, names)
}

func (s *ImporterTestSuite) TestImportRejectsBadHeader() {
	cases := []string{
		"date,amount,category,description\n2024-01-05,40.00,Food,",
		"date,category,amount\n2024-01-05,Food,40.00",
		"",
	}
	for _, csv := range cases {
		_, err := s.svc.ImportCSV(s.ctx, s.user, core.Expense, strings.NewReader(csv))
		assert.ErrorIs(s.T(), err, core.ErrMalformedRow, "input %q", csv)
	}
}

func (s *ImporterTestSuite) TestImportAcceptsHeaderCaseAndSpacing() {
	csv := "Date, Category, Amount, Description\n2024-01-05,Food,40.00,groceries"
	result, err := s.svc.ImportCSV(s.ctx, s.user, core.Expense, strings.NewReader(csv))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, result.Imported)
}

func (s *ImporterTestSuite) TestImportCancelledKeepsCommittedRows() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	csv := "date,category,amount,description\n2024-01-05,Food,40.00,"
	result, err := s.svc.ImportCSV(ctx, s.user, core.Expense, strings.NewReader(csv))
	assert.ErrorIs(s.T(), err, context.Canceled)
	assert.Zero(s.T(), result.Imported)
}

func (s *ImporterTestSuite) TestExportImportRoundTrip() {
	food, err := s.ledger.CreateCategory(s.ctx, s.user, "Food", core.Expense)
	require.NoError(s.T(), err)
	rent, err := s.ledger.CreateCategory(s.ctx, s.user, "Rent", core.Expense)
	require.NoError(s.T(), err)

	_, err = s.ledger.AddTransaction(s.ctx, s.user, core.Expense, food.ID,
		core.Money{Cents: 4000}, core.NewDate(2024, 1, 5), "groceries, weekly")
	require.NoError(s.T(), err)
	_, err = s.ledger.AddTransaction(s.ctx, s.user, core.Expense, rent.ID,
		core.Money{Cents: 120000}, core.NewDate(2024, 1, 1), "")
	require.NoError(s.T(), err)

	var out bytes.Buffer
	require.NoError(s.T(), s.svc.ExportCSV(s.ctx, s.user, core.Expense, nil, &out))

	// Re-import into a fresh user and compare the material fields.
	other := core.User{ID: 2, Username: "bob"}
	result, err := s.svc.ImportCSV(s.ctx, other, core.Expense, bytes.NewReader(out.Bytes()))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, result.Imported)
	assert.Empty(s.T(), result.Rejected)

	original, err := s.ledger.ListTransactions(s.ctx, s.user, core.Expense, nil)
	require.NoError(s.T(), err)
	copied, err := s.ledger.ListTransactions(s.ctx, other, core.Expense, nil)
	require.NoError(s.T(), err)
	require.Len(s.T(), copied, len(original))
	for i := range original {
		assert.Equal(s.T(), original[i].Date.String(), copied[i].Date.String())
		assert.Equal(s.T(), original[i].Amount, copied[i].Amount)
		assert.Equal(s.T(), original[i].Description, copied[i].Description)
	}
}

func (s *ImporterTestSuite) TestExportRespectsDateRange() {
	food, err := s.ledger.CreateCategory(s.ctx, s.user, "Food", core.Expense)
	require.NoError(s.T(), err)
	_, err = s.ledger.AddTransaction(s.ctx, s.user, core.Expense, food.ID,
		core.Money{Cents: 4000}, core.NewDate(2024, 1, 5), "")
	require.NoError(s.T(), err)
	_, err = s.ledger.AddTransaction(s.ctx, s.user, core.Expense, food.ID,
		core.Money{Cents: 2000}, core.NewDate(2024, 2, 5), "")
	require.NoError(s.T(), err)

	var out bytes.Buffer
	window := &core.DateRange{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 1, 31)}
	require.NoError(s.T(), s.svc.ExportCSV(s.ctx, s.user, core.Expense, window, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(s.T(), lines, 2, "header plus one row")
	assert.Equal(s.T(), "date,category,amount,description", lines[0])
	assert.Equal(s.T(), "2024-01-05,Food,40.00,", lines[1])
}

func TestImporterTestSuite(t *testing.T) {
	suite.Run(t, new(ImporterTestSuite))
}
