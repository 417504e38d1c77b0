package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldUserID      = "user_id"
	FieldUsername    = "username"
	FieldKind        = "kind"
	FieldCategory    = "category"
	FieldCategoryID  = "category_id"
	FieldAmountCents = "amount_cents"
	FieldDate        = "date"
	FieldRowCount    = "row_count"
	FieldImported    = "imported"
	FieldRejected    = "rejected"
	FieldDuration    = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentAuth     = "auth"
	ComponentLedger   = "ledger"
	ComponentImporter = "importer"
	ComponentReports  = "reports"
	ComponentStorage  = "storage"
	ComponentWorker   = "worker"
)

// Operations defines standard operation names
const (
	OpRegister     = "register"
	OpAuthenticate = "authenticate"
	OpCreate       = "create"
	OpRename       = "rename"
	OpDelete       = "delete"
	OpList         = "list"
	OpImport       = "import"
	OpExport       = "export"
	OpAggregate    = "aggregate"
	OpMigrate      = "migrate"
)
