// Package catalog wraps the open-data catalog's remote action-call API.
//
// The catalog exposes every operation as a named action taking a mapping of
// parameters and returning a mapping of fields. This package is the only
// place in the codebase that issues HTTP: everything above it (the search
// facade and the directory entities) goes through the Invoker interface,
// which also lets tests substitute an in-memory catalog.
//
// Catalog-specific error signals ("Not Found Error", "Validation Error")
// are translated into the apperror taxonomy here, so callers never parse
// catalog error envelopes themselves.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/studentfolio/studentfolio/internal/apperror"
)

// Invoker is the action-call surface consumed by the search facade and the
// directory entities.
//
// Call returns the action's result object. Actions whose result is a JSON
// list (tag_list, organization_list, organization_list_for_user) come back
// wrapped as Record{"results": ...} so the return type stays uniform.
type Invoker interface {
	Call(ctx context.Context, action string, params Params) (Record, error)

	// Upload performs an action call with a multipart body carrying a file
	// under the "upload" field, as resource_create and organization_patch
	// expect for file payloads.
	Upload(ctx context.Context, action string, params Params, filename string, file io.Reader) (Record, error)

	// WithAPIKey derives a new session bound to the given API key. Used to
	// build a user's personal session from the credential stored on their
	// catalog record.
	WithAPIKey(key string) Invoker
}

// Session identifies one capability scope against the catalog: the base URL
// plus an optional bearer API key. The administrator session holds the
// sysadmin key and is privileged for user_create/user_delete and cross-user
// lookups; every other session carries one end-user's own key.
type Session struct {
	BaseURL string
	APIKey  string
}

// Client is the HTTP implementation of Invoker.
type Client struct {
	session Session
	http    *http.Client
	logger  *slog.Logger
}

var _ Invoker = (*Client)(nil)

// NewClient creates a catalog client for the given session.
func NewClient(session Session, logger *slog.Logger) *Client {
	return &Client{
		session: session,
		http:    &http.Client{},
		logger:  logger,
	}
}

// WithAPIKey returns a client sharing this client's transport and base URL
// but authenticating with a different API key.
func (c *Client) WithAPIKey(key string) Invoker {
	return &Client{
		session: Session{BaseURL: c.session.BaseURL, APIKey: key},
		http:    c.http,
		logger:  c.logger,
	}
}

// envelope is the catalog's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   map[string]any  `json:"error"`
}

// Call invokes the named catalog action with the given parameters.
func (c *Client) Call(ctx context.Context, action string, params Params) (Record, error) {
	if params == nil {
		params = Params{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("catalog: encoding %s params: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.actionURL(action), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("catalog: building %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.session.APIKey != "" {
		req.Header.Set("Authorization", c.session.APIKey)
	}

	return c.do(action, req)
}

// Upload invokes an action with a multipart/form-data body. Scalar
// parameters become form fields; the file is attached as "upload".
func (c *Client) Upload(ctx context.Context, action string, params Params, filename string, file io.Reader) (Record, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range params {
		if err := writer.WriteField(key, fmt.Sprint(value)); err != nil {
			return nil, fmt.Errorf("catalog: encoding %s field %s: %w", action, key, err)
		}
	}
	part, err := writer.CreateFormFile("upload", filename)
	if err != nil {
		return nil, fmt.Errorf("catalog: attaching upload to %s: %w", action, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("catalog: copying upload for %s: %w", action, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("catalog: finishing upload body for %s: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.actionURL(action), &buf)
	if err != nil {
		return nil, fmt.Errorf("catalog: building %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.session.APIKey != "" {
		req.Header.Set("Authorization", c.session.APIKey)
	}

	return c.do(action, req)
}

func (c *Client) actionURL(action string) string {
	return c.session.BaseURL + "/api/3/action/" + action
}

// do executes the request and unpacks the catalog's response envelope.
func (c *Client) do(action string, req *http.Request) (Record, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.Transport(action, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, apperror.Transport(action, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err))
	}

	if !env.Success {
		err := translateError(action, env.Error)
		c.logger.Debug("catalog action failed",
			slog.String("action", action),
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return decodeResult(action, env.Result)
}

// decodeResult unpacks the result member. Object results become a Record
// directly; list results are wrapped under "results"; scalar results (rare,
// e.g. user_delete returns null) become an empty Record.
func decodeResult(action string, raw json.RawMessage) (Record, error) {
	var result any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, apperror.Transport(action, fmt.Errorf("decoding result: %w", err))
		}
	}
	switch v := result.(type) {
	case map[string]any:
		return Record(v), nil
	case []any:
		return Record{"results": v}, nil
	default:
		return Record{}, nil
	}
}

// translateError maps the catalog's error envelope onto the apperror
// taxonomy. The envelope carries a "__type" discriminator plus either a
// "message" or, for validation failures, per-field message lists.
func translateError(action string, catErr map[string]any) error {
	errType, _ := catErr["__type"].(string)
	message, _ := catErr["message"].(string)

	switch errType {
	case "Not Found Error":
		if message == "" {
			message = action
		}
		return apperror.NotFound("catalog object", message)
	case "Authorization Error":
		if message == "" {
			message = "not authorized for " + action
		}
		return apperror.Forbidden(message)
	case "Validation Error":
		field, fieldMsg := firstFieldError(catErr)
		if fieldMsg == "" {
			fieldMsg = message
		}
		return apperror.ValidationFailed(field, fieldMsg)
	default:
		if message == "" {
			message = fmt.Sprintf("unexpected error type %q", errType)
		}
		return apperror.Transport(action, fmt.Errorf("%s", message))
	}
}

// firstFieldError picks the first per-field message out of a validation
// envelope: every key other than __type/message maps to a list of strings.
func firstFieldError(catErr map[string]any) (field, message string) {
	for key, value := range catErr {
		if key == "__type" || key == "message" {
			continue
		}
		msgs, ok := value.([]any)
		if !ok || len(msgs) == 0 {
			continue
		}
		if msg, ok := msgs[0].(string); ok {
			return key, msg
		}
	}
	return "", ""
}
