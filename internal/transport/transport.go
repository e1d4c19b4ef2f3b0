// Package transport implements HTTP requests of the hosted pub/sub service:
// subscribe long-poll, publish, leave and time.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/centrifugal/subclient/internal/compose"
	"github.com/centrifugal/subclient/internal/tools"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasttemplate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Transport performs requests on behalf of the client engine.
type Transport interface {
	// Subscribe issues a long-poll request and blocks until server returns
	// events, ctx is canceled or request times out.
	Subscribe(ctx context.Context, req *compose.Request) (*Response, error)
	// Publish sends a single message.
	Publish(ctx context.Context, req *PublishRequest) (*PublishResponse, error)
	// Leave announces that client left channels and groups.
	Leave(ctx context.Context, clientID string, channels, groups []string) error
	// Time returns current server time token.
	Time(ctx context.Context) (string, error)
}

// PublishRequest describes message to publish.
type PublishRequest struct {
	Channel        string
	Payload        []byte
	ClientID       string
	StoreInHistory bool
	Compress       bool
	APNSPayload    []byte
	GCMPayload     []byte
	Meta           []byte
}

// PublishResponse of successful publish.
type PublishResponse struct {
	Token string
}

const (
	DefaultOrigin              = "https://ps.pndsn.com"
	DefaultSubscribeTimeout    = 310 * time.Second
	DefaultRequestTimeout      = 10 * time.Second
	defaultMaxIdleConnsPerHost = 32
	maxResponseSize            = 16 << 20
)

// Config of HTTPTransport.
type Config struct {
	Origin           string
	PublishKey       string
	SubscribeKey     string
	AuthKey          string
	SubscribeTimeout time.Duration
	RequestTimeout   time.Duration
	UserAgent        string
	// Tracing wraps HTTP round trips with OpenTelemetry instrumentation.
	Tracing bool
	// HTTPClient allows to use custom client, mostly useful in tests.
	HTTPClient *http.Client
}

// HTTPTransport is Transport over HTTP.
type HTTPTransport struct {
	config Config
	origin string
	client *http.Client
	log    zerolog.Logger

	subscribeURL *fasttemplate.Template
	publishURL   *fasttemplate.Template
	leaveURL     *fasttemplate.Template
	timeURL      *fasttemplate.Template
}

var _ Transport = (*HTTPTransport)(nil)

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		},
	}
}

// NewHTTP creates HTTPTransport.
func NewHTTP(cfg Config) (*HTTPTransport, error) {
	if cfg.SubscribeKey == "" {
		return nil, errors.New("subscribe key required")
	}
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	u, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("origin must have http:// or https:// scheme, got: %s", cfg.Origin)
	}
	if cfg.SubscribeTimeout == 0 {
		cfg.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "subclient"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = defaultHTTPClient()
	}
	if cfg.Tracing {
		rt := client.Transport
		if rt == nil {
			rt = http.DefaultTransport
		}
		c := *client
		c.Transport = otelhttp.NewTransport(rt)
		client = &c
	}
	return &HTTPTransport{
		config:       cfg,
		origin:       strings.TrimSuffix(cfg.Origin, "/"),
		client:       client,
		log:          log.With().Str("component", "transport").Logger(),
		subscribeURL: fasttemplate.New("/v2/subscribe/{{sub_key}}/{{channels}}/0", "{{", "}}"),
		publishURL:   fasttemplate.New("/publish/{{pub_key}}/{{sub_key}}/0/{{channel}}/0", "{{", "}}"),
		leaveURL:     fasttemplate.New("/v2/presence/sub-key/{{sub_key}}/channel/{{channels}}/leave", "{{", "}}"),
		timeURL:      fasttemplate.New("/time/0", "{{", "}}"),
	}, nil
}

func channelsPath(channels []string) string {
	if len(channels) == 0 {
		return ","
	}
	escaped := make([]string, len(channels))
	for i, ch := range channels {
		escaped[i] = url.PathEscape(ch)
	}
	return strings.Join(escaped, ",")
}

func (t *HTTPTransport) baseQuery(clientID string) url.Values {
	q := url.Values{}
	if clientID != "" {
		q.Set("uuid", clientID)
	}
	if t.config.AuthKey != "" {
		q.Set("auth", t.config.AuthKey)
	}
	q.Set("requestid", uuid.NewString())
	return q
}

// Subscribe see Transport.
func (t *HTTPTransport) Subscribe(ctx context.Context, req *compose.Request) (*Response, error) {
	path := t.subscribeURL.ExecuteString(map[string]any{
		"sub_key":  url.PathEscape(t.config.SubscribeKey),
		"channels": channelsPath(req.Channels),
	})
	q := t.baseQuery(req.ClientID)
	token := req.Cursor.Token
	if token == "" {
		token = "0"
	}
	q.Set("tt", token)
	if req.Cursor.Region != 0 {
		q.Set("tr", strconv.Itoa(req.Cursor.Region))
	}
	if len(req.Groups) > 0 {
		q.Set("channel-group", strings.Join(req.Groups, ","))
	}
	if req.State != "" {
		q.Set("state", req.State)
	}
	if req.Heartbeat > 0 {
		q.Set("heartbeat", strconv.Itoa(req.Heartbeat))
	}
	if req.FilterExpression != "" {
		q.Set("filter-expr", req.FilterExpression)
	}
	body, err := t.do(ctx, http.MethodGet, path, q, nil, nil, t.config.SubscribeTimeout)
	if err != nil {
		return nil, err
	}
	resp, err := ParseSubscribeResponse(body)
	if err != nil {
		return nil, &Error{Kind: KindServer, StatusCode: http.StatusOK, Message: err.Error(), Err: err}
	}
	return resp, nil
}

// Publish see Transport.
func (t *HTTPTransport) Publish(ctx context.Context, req *PublishRequest) (*PublishResponse, error) {
	if t.config.PublishKey == "" {
		return nil, &Error{Kind: KindServer, Message: "publish key not configured"}
	}
	body, err := buildPublishBody(req.Payload, req.APNSPayload, req.GCMPayload)
	if err != nil {
		return nil, fmt.Errorf("error building publish body: %w", err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if req.Compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		body = buf.Bytes()
		header.Set("Content-Encoding", "gzip")
	}
	path := t.publishURL.ExecuteString(map[string]any{
		"pub_key": url.PathEscape(t.config.PublishKey),
		"sub_key": url.PathEscape(t.config.SubscribeKey),
		"channel": url.PathEscape(req.Channel),
	})
	q := t.baseQuery(req.ClientID)
	if req.StoreInHistory {
		q.Set("store", "1")
	} else {
		q.Set("store", "0")
	}
	if len(req.Meta) > 0 {
		q.Set("meta", string(req.Meta))
	}
	data, err := t.do(ctx, http.MethodPost, path, q, header, body, t.config.RequestTimeout)
	if err != nil {
		return nil, err
	}
	token, err := parsePublishResponse(data)
	if err != nil {
		return nil, err
	}
	return &PublishResponse{Token: token}, nil
}

// Leave see Transport.
func (t *HTTPTransport) Leave(ctx context.Context, clientID string, channels, groups []string) error {
	if len(channels) == 0 && len(groups) == 0 {
		return nil
	}
	path := t.leaveURL.ExecuteString(map[string]any{
		"sub_key":  url.PathEscape(t.config.SubscribeKey),
		"channels": channelsPath(channels),
	})
	q := t.baseQuery(clientID)
	if len(groups) > 0 {
		q.Set("channel-group", strings.Join(groups, ","))
	}
	_, err := t.do(ctx, http.MethodGet, path, q, nil, nil, t.config.RequestTimeout)
	return err
}

// Time see Transport.
func (t *HTTPTransport) Time(ctx context.Context) (string, error) {
	body, err := t.do(ctx, http.MethodGet, t.timeURL.ExecuteString(nil), url.Values{}, nil, nil, t.config.RequestTimeout)
	if err != nil {
		return "", err
	}
	token, err := parseTimeResponse(body)
	if err != nil {
		return "", &Error{Kind: KindServer, StatusCode: http.StatusOK, Message: err.Error(), Err: err}
	}
	return token, nil
}

// do executes request. Cancellation of ctx is returned as ctx.Err() so that
// callers can tell deliberate cancellation from failures.
func (t *HTTPTransport) do(
	ctx context.Context, method string, path string, query url.Values, header http.Header, body []byte, timeout time.Duration,
) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := t.origin + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error constructing HTTP request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("User-Agent", t.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	if e := t.log.Trace(); e.Enabled() {
		e.Str("method", method).Str("url", tools.RedactedLogURL(u)).Msg("http request")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseErrorResponse(resp.StatusCode, data)
	}
	return data, nil
}
