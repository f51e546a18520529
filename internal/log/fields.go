package log

// Field names shared by every component.
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldUserID        = "user_id"
	FieldLedgerID      = "ledger_id"
	FieldCategory      = "category"
	FieldKind          = "kind"
	FieldAmount        = "amount"
	FieldPaymentID     = "payment_id"
	FieldPaymentStatus = "payment_status"
	FieldPlan          = "plan"
)

const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentPayments  = "payments"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentAuth      = "auth"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
)

const (
	OpCreateTransaction = "create_transaction"
	OpListTransactions  = "list_transactions"
	OpSummary           = "summary"
	OpCreatePayment     = "create_payment"
	OpWebhook           = "payment_webhook"
	OpPaymentStatus     = "payment_status"
	OpStartup           = "startup"
	OpShutdown          = "shutdown"
)

const (
	ErrorTypeValidation  = "validation_error"
	ErrorTypeForbidden   = "forbidden_error"
	ErrorTypeNotFound    = "not_found_error"
	ErrorTypeUnavailable = "backend_unavailable"
	ErrorTypeAuth        = "auth_error"
	ErrorTypeInternal    = "internal_error"
)

// LogFields builds a set of structured attributes.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithErrorType(t string) LogFields {
	f[FieldErrorType] = t
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithUser(userID string) LogFields {
	if userID != "" {
		f[FieldUserID] = userID
	}
	return f
}

// WithTransaction adds the fields identifying an appended transaction.
func (f LogFields) WithTransaction(category, kind, amount string) LogFields {
	f[FieldCategory] = category
	f[FieldKind] = kind
	f[FieldAmount] = amount
	return f
}

func (f LogFields) WithPayment(paymentID, status, plan string) LogFields {
	f[FieldPaymentID] = paymentID
	f[FieldPaymentStatus] = status
	f[FieldPlan] = plan
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice flattens the fields into slog key/value pairs.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
