package elvia

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-openapi/runtime"
	httptransport "github.com/go-openapi/runtime/client"
	"github.com/go-openapi/strfmt"
)

const (
	DefaultHost     = "elvia.azure-api.net"
	DefaultBasePath = "/customer/metervalues/api/v2"
	DefaultScheme   = "https"
	DefaultTimeout  = 10 * time.Second
)

var (
	ErrTimeout    = errors.New("elvia: request timed out")
	ErrConnection = errors.New("elvia: cannot connect")
)

type Options struct {
	Host      string
	BasePath  string
	Scheme    string
	Timeout   time.Duration
	Transport http.RoundTripper
}

func DefaultOptions() Options {
	return Options{
		Host:     DefaultHost,
		BasePath: DefaultBasePath,
		Scheme:   DefaultScheme,
		Timeout:  DefaultTimeout,
	}
}

// Client talks to the Elvia meter values API on behalf of a single token.
type Client struct {
	transport *httptransport.Runtime
	schemes   []string
	timeout   time.Duration
}

func NewClient(token string, opts Options) *Client {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.BasePath == "" {
		opts.BasePath = DefaultBasePath
	}
	if opts.Scheme == "" {
		opts.Scheme = DefaultScheme
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	transport := httptransport.New(opts.Host, opts.BasePath, []string{opts.Scheme})
	if opts.Transport != nil {
		transport.Transport = opts.Transport
	}
	transport.DefaultAuthentication = httptransport.BearerToken(token)
	// error bodies come as application/problem+json and the like, the status
	// code must survive whatever the content type
	transport.Consumers["*/*"] = runtime.JSONConsumer()

	return &Client{
		transport: transport,
		schemes:   []string{opts.Scheme},
		timeout:   opts.Timeout,
	}
}

// GetMeters lists the metering points the token has access to. Non-2xx
// statuses are not errors: the caller decides what a 401 or 403 means.
func (c *Client) GetMeters(ctx context.Context) (*MetersResult, error) {
	result, err := c.transport.Submit(&runtime.ClientOperation{
		ID:                 "getMeters",
		Method:             http.MethodGet,
		PathPattern:        "/meters",
		ProducesMediaTypes: []string{runtime.JSONMime},
		ConsumesMediaTypes: []string{runtime.JSONMime},
		Schemes:            c.schemes,
		Params: runtime.ClientRequestWriterFunc(func(req runtime.ClientRequest, _ strfmt.Registry) error {
			return req.SetTimeout(c.timeout)
		}),
		Reader:  runtime.ClientResponseReaderFunc(readMetersResponse),
		Context: ctx,
	})
	if err != nil {
		return nil, classifyTransportError(err)
	}
	res, ok := result.(*MetersResult)
	if !ok {
		return nil, fmt.Errorf("elvia: unexpected result type %T", result)
	}
	return res, nil
}

func readMetersResponse(response runtime.ClientResponse, consumer runtime.Consumer) (any, error) {
	res := &MetersResult{StatusCode: response.Code()}
	if response.Code() != http.StatusOK {
		return res, nil
	}
	var payload metersResponse
	if err := consumer.Consume(response.Body(), &payload); err != nil {
		return nil, fmt.Errorf("elvia: decode meters response: %w", err)
	}
	res.MeteringPoints = payload.MeteringPoints
	return res, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return err
}

// IsTimeout reports whether err comes from a request exceeding its deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}
