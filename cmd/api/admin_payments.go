package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"paygate/internal/domain/paymentsrepo"
	"paygate/internal/params"

	"github.com/go-chi/chi/v5"
)

type paymentFilter struct {
	Status string `validate:"omitempty,oneof=pending paid failed"`
}

// adminListPaymentsHandler returns a page of payment records.
// Optional filters: status (pending|paid|failed), since (RFC3339).
//
//	GET /v1/admin/payments
func (app *application) adminListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// --- filters ---
	q := r.URL.Query()
	filter := paymentFilter{Status: strings.TrimSpace(q.Get("status"))} // "" => no filter
	if err := Validate.Struct(filter); err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid status: %w", err))
		return
	}

	// since is optional; expect RFC3339
	var since *time.Time
	if rawSince := strings.TrimSpace(q.Get("since")); rawSince != "" {
		t, parseErr := time.Parse(time.RFC3339, rawSince)
		if parseErr != nil {
			app.badRequestResponse(w, r, fmt.Errorf("invalid since (must be RFC3339): %w", parseErr))
			return
		}
		since = &t
	}

	pg := params.ParsePagination(q)

	records, total, err := app.records.List(ctx, filter.Status, since, pg.Limit, pg.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	pg.ComputeMeta(total)

	if err := app.jsonResponse(w, http.StatusOK, map[string]any{
		"payments":   records,
		"pagination": pg,
		"status":     filter.Status,
		"since":      since, // null if not provided
	}); err != nil {
		app.internalServerError(w, r, err)
		return
	}
}

// adminGetPaymentHandler returns one record by transaction code.
//
//	GET /v1/admin/payments/{code}
func (app *application) adminGetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))

	record, err := app.records.GetByTransactionCode(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, paymentsrepo.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, record); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminListFailuresHandler returns failed pay and verify attempts, newest
// first, optionally for one transaction_code.
//
//	GET /v1/admin/payments/failures
func (app *application) adminListFailuresHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()
	code := strings.TrimSpace(q.Get("transaction_code"))
	pg := params.ParsePagination(q)

	logs, total, err := app.failures.ListFailures(ctx, code, pg.Limit, pg.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	pg.ComputeMeta(total)

	if err := app.jsonResponse(w, http.StatusOK, map[string]any{
		"failures":         logs,
		"pagination":       pg,
		"transaction_code": code,
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}
