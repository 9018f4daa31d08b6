// Package backend talks to the verification backend. Client speaks the
// GraphQL-over-HTTP API the mobile app used; Fake is an in-memory stand-in
// for local runs and tests.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"liveness/internal/liveness/models"
	"liveness/pkg/platform/circuit"
	"liveness/pkg/platform/sentinel"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 2048
	tracerName     = "liveness/backend"
)

const (
	opUploadDocument          = "UploadDocument"
	opGetFaceLivenessID       = "GetFaceLivenessId"
	opGetTemporaryCredentials = "GetTemporaryCredentials"
	opGetFaceLivenessResult   = "GetFaceLivenessResult"
)

var operations = map[string]string{
	opUploadDocument: `mutation UploadDocument($photo_image: String!) {
  UploadDocument(photo_image: $photo_image) { id uploaded_at }
}`,
	opGetFaceLivenessID: `query GetFaceLivenessId($document_id: ID) {
  GetFaceLivenessId(document_id: $document_id) { liveness_session_id }
}`,
	opGetTemporaryCredentials: `query GetTemporaryCredentials {
  GetTemporaryCredentials { access_key_id secret_key session_token expiration }
}`,
	opGetFaceLivenessResult: `query GetFaceLivenessResult($session_id: String!) {
  GetFaceLivenessResult(session_id: $session_id) { status status_reason }
}`,
}

// Client implements ports.Backend over HTTP. Each call is a single attempt;
// retry policy belongs to the caller.
type Client struct {
	endpoint string
	http     *http.Client
	breaker  *circuit.Breaker
	tracer   trace.Tracer
	logger   *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBreaker short-circuits calls while the backend keeps failing.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: defaultTimeout},
		tracer:   otel.Tracer(tracerName),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type uploadDocumentData struct {
	UploadDocument *struct {
		ID         string    `json:"id"`
		UploadedAt time.Time `json:"uploaded_at"`
	} `json:"UploadDocument"`
}

func (c *Client) UploadDocument(ctx context.Context, artifact *models.DocumentArtifact) (*models.UploadReceipt, error) {
	if artifact.IsEmpty() {
		return nil, models.ErrEmptyDocument
	}
	vars := map[string]any{"photo_image": DataURI(artifact)}

	var data uploadDocumentData
	if err := c.do(ctx, opUploadDocument, vars, "", &data); err != nil {
		return nil, err
	}
	if data.UploadDocument == nil || data.UploadDocument.ID == "" {
		return nil, fmt.Errorf("%s: empty receipt", opUploadDocument)
	}
	return &models.UploadReceipt{
		ID:         data.UploadDocument.ID,
		UploadedAt: data.UploadDocument.UploadedAt,
	}, nil
}

type livenessIDData struct {
	GetFaceLivenessID *struct {
		LivenessSessionID string `json:"liveness_session_id"`
	} `json:"GetFaceLivenessId"`
}

func (c *Client) AllocateLivenessSession(ctx context.Context, receipt *models.UploadReceipt) (models.SessionID, error) {
	vars := map[string]any{}
	if receipt != nil {
		vars["document_id"] = receipt.ID
	}
	var data livenessIDData
	if err := c.do(ctx, opGetFaceLivenessID, vars, "", &data); err != nil {
		return "", err
	}
	if data.GetFaceLivenessID == nil || data.GetFaceLivenessID.LivenessSessionID == "" {
		return "", fmt.Errorf("%s: empty session id", opGetFaceLivenessID)
	}
	return models.SessionID(data.GetFaceLivenessID.LivenessSessionID), nil
}

type credentialsData struct {
	GetTemporaryCredentials *struct {
		AccessKeyID  string `json:"access_key_id"`
		SecretKey    string `json:"secret_key"`
		SessionToken string `json:"session_token"`
		Expiration   string `json:"expiration"`
	} `json:"GetTemporaryCredentials"`
}

func (c *Client) FetchTemporaryCredentials(ctx context.Context, userToken string) (*models.Credentials, error) {
	var data credentialsData
	if err := c.do(ctx, opGetTemporaryCredentials, nil, userToken, &data); err != nil {
		return nil, err
	}
	raw := data.GetTemporaryCredentials
	if raw == nil {
		return nil, fmt.Errorf("%s: empty credentials", opGetTemporaryCredentials)
	}
	exp, err := parseExpiration(raw.Expiration)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opGetTemporaryCredentials, err)
	}
	return &models.Credentials{
		AccessKeyID:  raw.AccessKeyID,
		SecretKey:    raw.SecretKey,
		SessionToken: raw.SessionToken,
		Expiration:   exp,
	}, nil
}

type resultData struct {
	GetFaceLivenessResult *struct {
		Status       string `json:"status"`
		StatusReason string `json:"status_reason"`
	} `json:"GetFaceLivenessResult"`
}

func (c *Client) FetchLivenessResult(ctx context.Context, sessionID models.SessionID) (*models.ResultRecord, error) {
	vars := map[string]any{"session_id": sessionID.String()}
	var data resultData
	if err := c.do(ctx, opGetFaceLivenessResult, vars, "", &data); err != nil {
		return nil, err
	}
	if data.GetFaceLivenessResult == nil {
		return nil, fmt.Errorf("%s: empty result", opGetFaceLivenessResult)
	}
	return &models.ResultRecord{
		Status:       data.GetFaceLivenessResult.Status,
		StatusReason: data.GetFaceLivenessResult.StatusReason,
	}, nil
}

// DataURI renders the artifact the way the upload mutation expects it.
func DataURI(artifact *models.DocumentArtifact) string {
	return "data:" + artifact.MimeType() + ";base64," + base64.StdEncoding.EncodeToString(artifact.Bytes())
}

type graphQLRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

func (c *Client) do(ctx context.Context, op string, vars map[string]any, bearer string, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "backend."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("graphql.operation.name", op)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.breaker != nil && !c.breaker.Allow() {
		return fmt.Errorf("%s: circuit %s open: %w", op, c.breaker.Name(), sentinel.ErrUnavailable)
	}

	start := time.Now()
	err = c.roundTrip(ctx, op, vars, bearer, out)
	c.record(ctx, op, err)
	c.logger.DebugContext(ctx, "backend call",
		"operation", op,
		"latency", time.Since(start),
		"error", err,
	)
	return err
}

func (c *Client) roundTrip(ctx context.Context, op string, vars map[string]any, bearer string, out any) error {
	body, err := json.Marshal(graphQLRequest{OperationName: op, Query: operations[op], Variables: vars})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		return fmt.Errorf("%s: %v: %w", op, err, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, sentinel.ErrUnauthorized)
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, sentinel.ErrUnavailable)
	case resp.StatusCode != http.StatusOK:
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(tail)))
	}

	var gr graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if len(gr.Errors) > 0 {
		first := gr.Errors[0]
		if strings.EqualFold(first.Extensions.Code, "UNAUTHENTICATED") || strings.EqualFold(first.Extensions.Code, "FORBIDDEN") {
			return fmt.Errorf("%s: %s: %w", op, first.Message, sentinel.ErrUnauthorized)
		}
		return fmt.Errorf("%s: %s", op, first.Message)
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return fmt.Errorf("%s: response has no data", op)
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", op, err)
	}
	return nil
}

// record feeds the breaker. Rejected tokens are the caller's problem, not a
// sign the backend is down.
func (c *Client) record(ctx context.Context, op string, err error) {
	if c.breaker == nil {
		return
	}
	if err == nil || errors.Is(err, sentinel.ErrUnauthorized) {
		if _, change := c.breaker.RecordSuccess(); change.Closed {
			c.logger.InfoContext(ctx, "backend circuit closed", "operation", op)
		}
		return
	}
	if !errors.Is(err, sentinel.ErrUnavailable) {
		return
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "backend circuit opened", "operation", op, "error", err)
	}
}

func parseExpiration(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing expiration")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiration %q: %w", s, err)
	}
	return t, nil
}
