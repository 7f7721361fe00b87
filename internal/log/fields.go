package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldError     = "error"
	FieldErrorType = "error_type"
	FieldOperation = "operation"
	FieldCostID    = "id"
	FieldSum       = "sum"
	FieldCategory  = "category"
	FieldDate      = "date"
	FieldCount     = "count"
	FieldDBPath    = "db_path"
	FieldEventType = "event_type"
	FieldEventID   = "event_id"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentCosts   = "costs"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentCache   = "cache"
	ComponentImport  = "import"
)

// Operations defines standard operation names
const (
	OpInsert   = "insert"
	OpDelete   = "delete"
	OpPublish  = "publish"
	OpImport   = "import"
	OpValidate = "validate"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation = "validation_error"
	ErrorTypeNetwork    = "network_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category field
func (f LogFields) WithErrorType(errorType string) LogFields {
	f[FieldErrorType] = errorType
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithCost adds cost-related fields
func (f LogFields) WithCost(sum, category, date string) LogFields {
	f[FieldSum] = sum
	f[FieldCategory] = category
	f[FieldDate] = date
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
