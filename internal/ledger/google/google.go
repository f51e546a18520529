package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fynace/internal/core"
	"fynace/internal/ledger"
)

const maxRetryDelay = 30 * time.Second

// Ensure interface conformance
var _ ledger.Store = (*Client)(nil)

// Config holds what the Sheets client needs. Exactly one credential source is used,
// JSON first.
type Config struct {
	CredentialsJSON []byte
	CredentialsFile string

	// MaxRetries applies to idempotent calls only (reads and header writes).
	MaxRetries int
	RetryDelay time.Duration
}

type Client struct {
	svc        *gsheet.Service
	maxRetries int
	retryDelay time.Duration
}

// New creates a Sheets-backed ledger store using service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, cfg.MaxRetries, cfg.RetryDelay), nil
}

func newClient(svc *gsheet.Service, maxRetries int, retryDelay time.Duration) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}
	return &Client{svc: svc, maxRetries: maxRetries, retryDelay: retryDelay}
}

// newSheetsService builds a Sheets service authenticated as a service account,
// on top of a pooled HTTP transport.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsJSON := cfg.CredentialsJSON
	switch {
	case len(credentialsJSON) > 0:
		slog.InfoContext(ctx, "Using inline service account credentials")
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		slog.InfoContext(ctx, "Reading service account credentials from file", "path", cfg.CredentialsFile)
		var err error
		credentialsJSON, err = os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	jwtConfig, err := goauth.JWTConfigFromJSON(credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	// The token source and the API calls share the pooled transport.
	baseCtx := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	httpClient := jwtConfig.Client(baseCtx)

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "client_email", jwtConfig.Email)
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API
// with connection pooling, timeouts and keep-alive.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// CreateLedger creates the spreadsheet, its three partitions and the header rows.
// A failure after the spreadsheet exists leaves it orphaned; the error says so.
func (c *Client) CreateLedger(ctx context.Context, title string) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	created, err := c.svc.Spreadsheets.Create(&gsheet.Spreadsheet{
		Properties: &gsheet.SpreadsheetProperties{Title: title},
	}).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return "", classify("create spreadsheet", err)
	}
	id := created.SpreadsheetId

	requests := make([]*gsheet.Request, 0, len(ledger.Partitions))
	for _, name := range ledger.Partitions {
		requests = append(requests, &gsheet.Request{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
		})
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(id, &gsheet.BatchUpdateSpreadsheetRequest{Requests: requests}).
		Context(ctx).Do()
	if err != nil {
		return "", classify(fmt.Sprintf("add partitions to %s", id), err)
	}

	for _, name := range ledger.TransactionalPartitions {
		rng := name + "!" + ledger.HeaderRange
		vr := &gsheet.ValueRange{Values: [][]any{ledger.Header}}
		err := c.retry(ctx, "write header "+rng, func() error {
			_, err := c.svc.Spreadsheets.Values.Update(id, rng, vr).
				ValueInputOption("RAW").Context(ctx).Do()
			return err
		})
		if err != nil {
			return "", err
		}
	}

	slog.InfoContext(ctx, "Ledger spreadsheet created", "ledger_id", id, "title", title)
	return id, nil
}

// AppendRow appends a single row. It is never retried here: a retry after a
// lost response would duplicate the row.
func (c *Client) AppendRow(ctx context.Context, ledgerID, partition string, row []any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := partition + "!" + ledger.AppendRange
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	_, err := c.svc.Spreadsheets.Values.Append(ledgerID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return classify(fmt.Sprintf("append %s to %s", rng, ledgerID), err)
	}
	return nil
}

// ReadRange fetches a range fresh from the spreadsheet. Numbers come back
// unformatted and dates as their displayed text.
func (c *Client) ReadRange(ctx context.Context, ledgerID, partition, rng string) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	full := partition + "!" + rng
	var resp *gsheet.ValueRange
	err := c.retry(ctx, fmt.Sprintf("read %s from %s", full, ledgerID), func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(ledgerID, full).
			ValueRenderOption("UNFORMATTED_VALUE").
			DateTimeRenderOption("FORMATTED_STRING").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		out = append(out, ledger.CellsText(row))
	}
	return out, nil
}

// retry runs an idempotent call, retrying transient failures with exponential backoff.
func (c *Client) retry(ctx context.Context, op string, call func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if attempt >= c.maxRetries || !isTransient(ctx, err) {
			return classify(op, err)
		}
		delay := backoff(c.retryDelay, attempt)
		slog.WarnContext(ctx, "Sheets call failed, retrying",
			"operation", op,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return classify(op, ctx.Err())
		case <-timer.C:
		}
	}
}

// backoff doubles base per attempt, capped at maxRetryDelay.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// isTransient reports whether err is worth retrying: rate limits, server
// errors and transport failures. Cancellation is not.
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return true
}

// classify maps a Sheets failure onto the ledger error taxonomy, keeping the cause.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusNotFound ||
			(gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range")) {
			return fmt.Errorf("%s: %w: %w", op, core.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrBackendUnavailable, err)
}
