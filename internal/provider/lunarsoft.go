package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/alarm-gateway/internal/domain"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	DefaultTimeout = 10 * time.Second

	lunarsoftName      = "lunarsoft"
	maxErrorBodyLength = 512
	jsonContentType    = "application/json; charset=utf-8"
)

// LunarsoftProvider posts alarm templates to the Lunarsoft KakaoTalk alarm API.
type LunarsoftProvider struct {
	client   *resty.Client
	endpoint string
	limits   domain.Limits
}

func NewLunarsoftProvider(endpoint string, timeout time.Duration) (*LunarsoftProvider, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client.SetTimeout(timeout)

	return NewLunarsoftProviderWithClient(endpoint, client)
}

func NewLunarsoftProviderWithClient(endpoint string, client *resty.Client) (*LunarsoftProvider, error) {
	validated, err := validateEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(DefaultTimeout)
	}
	client.SetRetryCount(0)
	// A redirected POST is replayed as a GET, so the 3xx itself is the answer.
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))

	return &LunarsoftProvider{
		client:   client,
		endpoint: validated,
		limits:   domain.DefaultLimits(),
	}, nil
}

// SetLimits overrides the body limits enforced before sending.
func (p *LunarsoftProvider) SetLimits(limits domain.Limits) {
	if p == nil {
		return
	}
	p.limits = limits
}

func (p *LunarsoftProvider) Name() string { return lunarsoftName }

func (p *LunarsoftProvider) Send(ctx context.Context, template *domain.AlarmTemplate) (*Result, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := template.ValidateWithLimits(p.limits); err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := encodeJSON(template)
	if err != nil {
		return nil, fmt.Errorf("failed to encode template: %w", err)
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", jsonContentType).
		SetHeader("Accept", "application/json").
		SetBody(payload).
		Post(p.endpoint)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if response == nil {
		return nil, &DispatchError{
			Kind:    KindIOFailure,
			Message: "provider returned no response",
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &DispatchError{
			Kind:       KindProtocolViolation,
			StatusCode: statusCode,
			Message:    providerErrorMessage(statusCode, response.String()),
		}
	}

	body, err := decodeCharset(response.Body(), response.Header().Get("Content-Type"))
	if err != nil {
		return nil, &DispatchError{
			Kind:       KindMalformedResponse,
			StatusCode: statusCode,
			Message:    "unsupported response charset",
			Cause:      err,
		}
	}

	msg, err := parseResponseMessage(body)
	if err != nil {
		return nil, &DispatchError{
			Kind:       KindMalformedResponse,
			StatusCode: statusCode,
			Message:    "provider response is not a JSON object",
			Cause:      err,
		}
	}

	return &Result{
		StatusCode: statusCode,
		Body:       string(body),
		Response:   msg,
	}, nil
}

func validateEndpoint(endpoint string) (string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return "", &DispatchError{Kind: KindInvalidEndpoint, Message: "alarm endpoint is required"}
	}

	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return "", &DispatchError{Kind: KindInvalidEndpoint, Message: "invalid alarm endpoint", Cause: err}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", &DispatchError{
			Kind:    KindInvalidEndpoint,
			Message: fmt.Sprintf("unsupported endpoint scheme %q", parsed.Scheme),
		}
	}
	if parsed.Host == "" {
		return "", &DispatchError{Kind: KindInvalidEndpoint, Message: "alarm endpoint host is required"}
	}

	return trimmed, nil
}

func classifyTransportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Op == "parse" {
			return &DispatchError{
				Kind:    KindInvalidEndpoint,
				Message: "provider endpoint rejected by transport",
				Cause:   err,
			}
		}
	}

	return &DispatchError{
		Kind:    KindIOFailure,
		Message: "provider request failed",
		Cause:   err,
	}
}

// encodeJSON marshals without HTML escaping so message bodies are sent as written.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// decodeCharset converts a response body to UTF-8 using the declared charset.
// Bodies without a charset must already be UTF-8.
func decodeCharset(body []byte, contentType string) ([]byte, error) {
	charset := ""
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			charset = strings.ToLower(strings.TrimSpace(params["charset"]))
		}
	}

	switch charset {
	case "", "utf-8", "utf8":
		if !utf8.Valid(body) {
			return nil, fmt.Errorf("response body is not valid UTF-8")
		}
		return body, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s body: %w", charset, err)
	}
	return decoded, nil
}

func parseResponseMessage(body []byte) (*domain.ResponseMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("unexpected response body %q", truncate(string(trimmed), 64))
	}

	var msg domain.ResponseMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	body = strings.TrimSpace(body)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, truncate(body, maxErrorBodyLength))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
