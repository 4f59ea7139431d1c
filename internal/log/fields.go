package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
	FieldExpenseID = "expense_id"
	FieldIntent    = "intent"
	FieldItem      = "item"
	FieldCategory  = "category"
	FieldAmount    = "amount"
	FieldLimit     = "limit"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentBot        = "bot"
	ComponentDispatcher = "dispatcher"
	ComponentResolver   = "resolver"
	ComponentClassifier = "classifier"
	ComponentWorker     = "worker"
)
