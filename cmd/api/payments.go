package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"paygate/internal/payments"

	"github.com/go-chi/chi/v5"
)

const maxCallbackBytes = 1 << 20

func (app *application) providerParam(w http.ResponseWriter, r *http.Request) (payments.Provider, bool) {
	p, err := payments.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		app.notFoundResponse(w, r, err)
		return "", false
	}
	return p, true
}

// envelopeStatus maps an envelope to the HTTP status the caller sees.
func envelopeStatus(env payments.Envelope) int {
	if env.Status {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}

func (app *application) listProvidersHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.jsonResponse(w, http.StatusOK, map[string]any{
		"providers": app.payments.Providers(),
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// payHandler starts a payment with the provider named in the path.
//
//	POST /v1/payments/{provider}/pay
func (app *application) payHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := app.providerParam(w, r)
	if !ok {
		return
	}

	var req payments.PaymentRequest
	if err := readJSON(w, r, &req); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	env := app.payments.Pay(r.Context(), p, req)

	if err := app.jsonResponse(w, envelopeStatus(env), env); err != nil {
		app.internalServerError(w, r, err)
	}
}

// verifyHandler settles a payment from a provider redirect or webhook. The
// raw query keeps its key order; form and JSON bodies are merged behind it.
//
//	GET|POST /v1/payments/{provider}/verify
func (app *application) verifyHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := app.providerParam(w, r)
	if !ok {
		return
	}

	req, err := payments.ParseQuery(r.URL.RawQuery)
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid query: %w", err))
		return
	}

	if r.Method == http.MethodPost {
		body, err := readCallbackBody(w, r)
		if err != nil {
			app.badRequestResponse(w, r, err)
			return
		}
		if len(body) > 0 {
			req = req.Merge(body)
		}
	}

	env := app.payments.Verify(r.Context(), p, req)

	if err := app.jsonResponse(w, envelopeStatus(env), env); err != nil {
		app.internalServerError(w, r, err)
	}
}

// readCallbackBody returns the fields of a form or JSON webhook body.
func readCallbackBody(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" || (mediaType == "" && raw[0] == '{') {
		return flattenJSON(raw)
	}

	form, err := payments.ParseQuery(string(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}
	return form.Params, nil
}

// flattenJSON turns a JSON object into dotted keys. A top level "obj"
// wrapper, as sent by webhook style callbacks, is unwrapped.
func flattenJSON(raw []byte) (url.Values, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid json body: %w", err)
	}
	if obj, ok := doc["obj"].(map[string]any); ok {
		doc = obj
	}

	out := url.Values{}
	flatten("", doc, out)
	return out, nil
}

func flatten(prefix string, v any, out url.Values) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, out)
		}
	case []any:
		b, _ := json.Marshal(t)
		out.Set(prefix, string(b))
	case nil:
		out.Set(prefix, "")
	default:
		out.Set(prefix, fmt.Sprint(t))
	}
}

type refundPayload struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	AmountCents   int64  `json:"amount_cents" validate:"gt=0"`
}

// adminRefundHandler refunds a settled transaction on providers that support it.
//
//	POST /v1/admin/payments/{provider}/refund
func (app *application) adminRefundHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := app.providerParam(w, r)
	if !ok {
		return
	}

	var payload refundPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	payload.TransactionID = strings.TrimSpace(payload.TransactionID)
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	result, err := app.payments.Refund(r.Context(), p, payload.TransactionID, payload.AmountCents)
	switch {
	case errors.Is(err, payments.ErrUnknownProvider), errors.Is(err, payments.ErrNotSupported):
		app.badRequestResponse(w, r, err)
		return
	case err != nil:
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, result); err != nil {
		app.internalServerError(w, r, err)
	}
}
