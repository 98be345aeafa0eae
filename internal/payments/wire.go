package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"paygate/internal/httpx"

	"github.com/gorilla/schema"
)

var callbackDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// decodeCallback fills dst from the callback fields using its `schema` tags.
func decodeCallback(req VerifyRequest, dst any) error {
	if err := callbackDecoder.Decode(dst, req.Params); err != nil {
		return fmt.Errorf("decode callback: %w", err)
	}
	return nil
}

// send issues one outbound call. Network failures and an open breaker come
// back as *TransportError; any HTTP reply is returned for the adapter to judge.
func (b *base) send(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*httpx.Response, error) {
	resp, err := b.client.Do(ctx, httpx.Request{Method: method, URL: rawURL, Header: header, Body: body})
	if err != nil {
		return nil, &TransportError{Provider: b.provider, Err: err}
	}
	return resp, nil
}

func (b *base) sendJSON(ctx context.Context, method, rawURL string, header http.Header, payload any) (*httpx.Response, error) {
	body, err := httpx.JSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", b.provider, err)
	}
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	return b.send(ctx, method, rawURL, h, body)
}

func (b *base) sendForm(ctx context.Context, rawURL string, header http.Header, form url.Values) (*httpx.Response, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.send(ctx, http.MethodPost, rawURL, h, []byte(form.Encode()))
}

// expect turns an unexpected status into a *TransportError carrying the body.
// With no codes given any 2xx is accepted.
func (b *base) expect(resp *httpx.Response, codes ...int) error {
	ok := resp.OK()
	if len(codes) > 0 {
		ok = false
		for _, c := range codes {
			if resp.StatusCode == c {
				ok = true
				break
			}
		}
	}
	if ok {
		return nil
	}
	return &TransportError{
		Provider:   b.provider,
		StatusCode: resp.StatusCode,
		Body:       truncate(string(resp.Body), 2048),
		Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
	}
}

// decode unmarshals a provider reply; malformed bodies are reported with the
// status and a truncated body.
func (b *base) decode(resp *httpx.Response, dst any) error {
	if err := json.Unmarshal(resp.Body, dst); err != nil {
		return &TransportError{
			Provider:   b.provider,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(resp.Body), 2048),
			Err:        fmt.Errorf("decode reply: %w", err),
		}
	}
	return nil
}

// providerErrors attaches a provider error body to an envelope.
func providerErrors(body string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(body), &m); err == nil && m != nil {
		return Redact(m)
	}
	return map[string]any{"body": body}
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// flexString accepts a JSON string or a bare number and keeps its literal text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

func (f flexString) String() string { return string(f) }
