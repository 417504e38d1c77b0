package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"finbook/internal/auth"
	"finbook/internal/cli"
	"finbook/internal/core"
	"finbook/internal/importer"
	"finbook/internal/ledger"
	"finbook/internal/log"
	"finbook/internal/reports"
	"finbook/internal/worker"
)

const usage = `Usage: finbook <command> [flags]

Commands:
  register    create a new account
  passwd      change a password
  history     show login history
  categories  list categories
  addcat      create a category
  renamecat   rename a category
  delcat      delete a category, optionally reassigning its transactions
  add         add a transaction
  remove      delete a transaction by id
  import      bulk-load transactions from a CSV file
  export      write transactions as CSV
  summary     income/expense/net over a date range
  top         top categories by total amount
  cashflow    per-month income, expense, and net
`

type app struct {
	logger        *log.Logger
	auth          *auth.Service
	ledger        *ledger.Service
	importr       *importer.Service
	reports       *reports.Service
	workers       int
	importTimeout time.Duration
	historyLimit  int
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	bootLogger := cli.SetupLogger("info")
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogLevel)

	users, finance := cli.OpenStores(logger, cfg)
	defer users.Close()
	defer finance.Close()

	ledgerSvc := ledger.New(finance, logger)
	a := &app{
		logger:  logger,
		auth:    auth.New(users, logger),
		ledger:  ledgerSvc,
		importr: importer.New(ledgerSvc, logger),
		reports: reports.New(finance, logger),
		workers: cfg.ImportWorkers,

		importTimeout: cfg.ImportTimeout,
		historyLimit:  cfg.HistoryLimit,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return a.cmdRegister(ctx, args)
	case "passwd":
		return a.cmdPasswd(ctx, args)
	case "history":
		return a.cmdHistory(ctx, args)
	case "categories":
		return a.cmdCategories(ctx, args)
	case "addcat":
		return a.cmdAddCategory(ctx, args)
	case "renamecat":
		return a.cmdRenameCategory(ctx, args)
	case "delcat":
		return a.cmdDeleteCategory(ctx, args)
	case "add":
		return a.cmdAdd(ctx, args)
	case "remove":
		return a.cmdRemove(ctx, args)
	case "import":
		return a.cmdImport(ctx, args)
	case "export":
		return a.cmdExport(ctx, args)
	case "summary":
		return a.cmdSummary(ctx, args)
	case "top":
		return a.cmdTop(ctx, args)
	case "cashflow":
		return a.cmdCashFlow(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("missing required flag: -user")
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	user, err := a.auth.Register(ctx, *username, password)
	if err != nil {
		return err
	}
	if err := a.ledger.EnsureDefaults(ctx, user); err != nil {
		return err
	}
	fmt.Printf("User %s created with id %d\n", user.Username, user.ID)
	return nil
}

func (a *app) cmdPasswd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	if err := fs.Parse(args); err != nil {
		return err
	}

	oldPassword, err := promptPassword("Current password: ")
	if err != nil {
		return err
	}
	user, err := a.auth.Authenticate(ctx, *username, oldPassword)
	if err != nil {
		return err
	}
	newPassword, err := promptPassword("New password: ")
	if err != nil {
		return err
	}
	if err := a.auth.ChangePassword(ctx, user, oldPassword, newPassword); err != nil {
		return err
	}
	fmt.Println("Password updated")
	return nil
}

func (a *app) cmdHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	limit := fs.Int("limit", a.historyLimit, "number of events to show (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := a.login(ctx, *username)
	if err != nil {
		return err
	}
	events, err := a.auth.LoginHistory(ctx, user, *limit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		outcome := "ok"
		if !ev.Success {
			outcome = "failed"
		}
		fmt.Printf("%s  %-16s %s\n", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Action, outcome)
	}
	return nil
}

func (a *app) cmdCategories(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("categories", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	kindFlag := fs.String("kind", "expense", "expense or income")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kind, err := core.ParseKind(*kindFlag)
	if err != nil {
		return err
	}

	user, err := a.login(ctx, *username)
	if err != nil {
		return err
	}
	categories, err := a.ledger.ListCategories(ctx, user, kind)
	if err != nil {
		return err
	}
	for _, c := range categories {
		fmt.Printf("%6d  %s\n", c.ID, c.Name)
	}
	return nil
}

func (a *app) cmdAddCategory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("addcat", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	kindFlag := fs.String("kind", "expense", "expense or income")
	name := fs.String("name", "", "category name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kind, err := core.ParseKind(*kindFlag)
	if err != nil {
		return err
	}
	if *name == "" {
		return errors.New("missing required flag: -name")
	}

	user, err := a.login(ctx, *username)
	if err != nil {
		return err
	}
	c, err := a.ledger.CreateCategory(ctx, user, *name, kind)
	if err != nil {
		return err
	}
	fmt.Printf("Category %s created with id %d\n", c.Name, c.ID)
	return nil
}

func (a *app) cmdRenameCategory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("renamecat", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	id := fs.Int64("id", 0, "category id")
	name := fs.String("name", "", "new category name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("missing required flag: -name")
	}

	user, err := a.login(ctx, *username)
	if err != nil {
		return err
	}
	if err := a.ledger.RenameCategory(ctx, user, *id, *name); err != nil {
		return err
	}
	fmt.Printf("Category %d renamed to %s\n", *id, *name)
	return nil
}

func (a *app) cmdDeleteCategory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delcat", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	id := fs.Int64("id", 0, "category id")
	into := fs.Int64("into", 0, "category id to reassign transactions to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := a.login(ctx, *username)
	if err != nil {
		return err
	}

	refs, err := a.ledger.CountCategoryReferences(ctx, user, *id)
	if err != nil {
		return err
	}
	var reassignTo *int64
	if *into != 0 {
		reassignTo = into
	}
	if err := a.ledger.DeleteCategory(ctx, user, *id, reassignTo); err != nil {
		if errors.Is(err, core.ErrCategoryInUse) {
			return fmt.Errorf("category %d has %d transactions; pass -into to reassign them: %w", *id, refs, err)
		}
		return err
	}
	if reassignTo != nil && refs > 0 {
		fmt.Printf("Category %d deleted, %d transactions moved to %d\n", *id, refs, *reassignTo)
	} else {
		fmt.Printf("Category %d deleted\n", *id)
	}
	return nil
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	kindFlag := fs.String("kind", "expense", "expense or income")
	category := fs.String("category", "", "category name (created if missing)")
	amountFlag := fs.String("amount", "", "positive decimal amount")
	dateFlag := fs.String("date", "", "date as YYYY-MM-DD")
	description := fs.String("desc", "", "optional description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kind, err := core.ParseKind(*kindFlag)
	if err != nil {
		return err
	}
	amount, err := core.ParseMoney(*amountFlag)
	if err != nil {
		return err
	}
	date, err := core.ParseDate(*dateFlag)
	if err != nil {
		return err
	}
	if *category == "" {
		return errors.New("missing required flag: -category")
	}

	user, err := a.login(ctx, *username)
	if err != nil {
		return err
	}
	cat, err := a.ledger.EnsureCategory(ctx, user, kind, *category)
	if err != nil {
		return err
	}
	t, err := a.ledger.AddTransaction(ctx, user, kind, cat.ID, amount, date, *description)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s %s under %s on %s (id %d)\n", kind, amount, cat.Name, date, t.ID)
	return nil
}

func (a *app) cmdRemove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	id := fs.Int64("id", 0, "transaction id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := a.login(ctx, *username)
	if err != nil {
		return err
	}
	if err := a.ledger.DeleteTransaction(ctx, user, *id); err != nil {
		return err
	}
	fmt.Printf("Transaction %d removed\n", *id)
	return nil
}

func (a *app) cmdImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	kindFlag := fs.String("kind", "expense", "expense or income")
	file := fs.String("file", "", "CSV file (date,category,amount,description)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kind, err := core.ParseKind(*kindFlag)
	if err != nil {
		return err
	}
	if *file == "" {
		return errors.New("missing required flag: -file")
	}

	user, err := a.login(ctx, *username)
	if err != nil {
		return err
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	// Run the import on the worker pool so a ctrl-c cancels cleanly;
	// rows committed before cancellation are kept.
	if a.importTimeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, a.importTimeout)
		defer timeoutCancel()
	}
	pool := worker.NewPool(a.importr, a.logger, a.workers)
	pool.Start(ctx)
	if err := pool.Submit(ctx, worker.ImportJob{Name: *file, User: user, Kind: kind, Source: f}); err != nil {
		return err
	}

	outcome := <-pool.Results()
	if shutdownErr := pool.Shutdown(); shutdownErr != nil {
		return shutdownErr
	}

	fmt.Printf("Imported %d rows, rejected %d\n", outcome.Result.Imported, len(outcome.Result.Rejected))
	for _, rowErr := range outcome.Result.Rejected {
		fmt.Printf("  %v\n", rowErr)
	}
	if outcome.Err != nil {
		if errors.Is(outcome.Err, context.Canceled) || errors.Is(outcome.Err, context.DeadlineExceeded) {
			fmt.Println("Import cancelled; rows committed so far are kept")
			return nil
		}
		return outcome.Err
	}
	return nil
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	kindFlag := fs.String("kind", "expense", "expense or income")
	from := fs.String("from", "", "range start as YYYY-MM-DD")
	to := fs.String("to", "", "range end as YYYY-MM-DD")
	out := fs.String("out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kind, err := core.ParseKind(*kindFlag)
	if err != nil {
		return err
	}
	dateRange, err := parseRange(*from, *to)
	if err != nil {
		return err
	}

	user, err := a.login(ctx, *username)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return a.importr.ExportCSV(ctx, user, kind, dateRange, w)
}

func (a *app) cmdSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	from := fs.String("from", "", "range start as YYYY-MM-DD")
	to := fs.String("to", "", "range end as YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	start, err := core.ParseDate(*from)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	end, err := core.ParseDate(*to)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}

	user, err := a.login(ctx, *username)
	if err != nil {
		return err
	}
	summary, err := a.reports.BudgetSummary(ctx, user, start, end)
	if err != nil {
		return err
	}
	fmt.Printf("Income:  %s\nExpense: %s\nNet:     %s\n", summary.Income, summary.Expense, summary.Net)
	return nil
}

func (a *app) cmdTop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	kindFlag := fs.String("kind", "expense", "expense or income")
	from := fs.String("from", "", "range start as YYYY-MM-DD")
	to := fs.String("to", "", "range end as YYYY-MM-DD")
	limit := fs.Int("limit", 5, "number of categories")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kind, err := core.ParseKind(*kindFlag)
	if err != nil {
		return err
	}
	dateRange, err := parseRange(*from, *to)
	if err != nil {
		return err
	}

	user, err := a.login(ctx, *username)
	if err != nil {
		return err
	}
	totals, err := a.reports.TopCategories(ctx, user, kind, dateRange, *limit)
	if err != nil {
		return err
	}
	for _, ct := range totals {
		fmt.Printf("%-24s %12s\n", ct.Name, ct.Total)
	}
	return nil
}

func (a *app) cmdCashFlow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cashflow", flag.ContinueOnError)
	username := fs.String("user", "", "username")
	from := fs.String("from", "", "range start as YYYY-MM-DD")
	to := fs.String("to", "", "range end as YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dateRange, err := parseRange(*from, *to)
	if err != nil {
		return err
	}

	user, err := a.login(ctx, *username)
	if err != nil {
		return err
	}
	flows, err := a.reports.CashFlow(ctx, user, dateRange)
	if err != nil {
		return err
	}
	fmt.Printf("%-8s %12s %12s %12s\n", "month", "income", "expense", "net")
	for _, flow := range flows {
		fmt.Printf("%-8s %12s %12s %12s\n", flow.Month, flow.Income, flow.Expense, flow.Net)
	}
	return nil
}

// login prompts for a password and authenticates the user. Every data
// command goes through here: user identity is an explicit value, never
// ambient state.
func (a *app) login(ctx context.Context, username string) (core.User, error) {
	if username == "" {
		return core.User{}, errors.New("missing required flag: -user")
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return core.User{}, err
	}
	return a.auth.Authenticate(ctx, username, password)
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	// Fallback for pipes and tests
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func parseRange(from, to string) (*core.DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, errors.New("-from and -to must be given together")
	}
	start, err := core.ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("-from: %w", err)
	}
	end, err := core.ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("-to: %w", err)
	}
	r := &core.DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
