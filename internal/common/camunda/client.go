package camunda

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sneurgaonkar/sales-ai-agents/internal/common/config"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
)

// Client wraps the Zeebe gRPC client used by the follow-up worker.
type Client struct {
	client zbc.Client
	opts   Options
}

type Options struct {
	Address        string
	Plaintext      bool
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
}

func DefaultOptions(address string) Options {
	return Options{
		Address:        address,
		Plaintext:      true,
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
		MaxRetries:     3,
		BaseDelay:      time.Second,
		MaxDelay:       10 * time.Second,
	}
}

// OptionsFromConfig applies the camunda section over DefaultOptions.
func OptionsFromConfig(cfg config.CamundaConfig) Options {
	opts := DefaultOptions(cfg.BrokerAddress)
	if cfg.RequestTimeout > 0 {
		opts.RequestTimeout = config.GetDuration(cfg.RequestTimeout)
	}
	return opts
}

func NewClient(address string) (*Client, error) {
	return New(DefaultOptions(address))
}

// New creates the Zeebe client and waits for the broker topology.
func New(opts Options) (*Client, error) {
	if opts.Address == "" {
		return nil, errors.NewConfigInvalidError("camunda.broker_address is empty")
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         opts.Address,
		UsePlaintextConnection: opts.Plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	c := &Client{client: zeebeClient, opts: opts}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := c.retry(ctx, "topology", func(ctx context.Context) error {
		_, err := zeebeClient.NewTopologyCommand().Send(ctx)
		return err
	}); err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", opts.Address, err)
	}

	return c, nil
}

func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Deploy uploads a BPMN model under the given resource name.
func (c *Client) Deploy(ctx context.Context, name string, model []byte) (int64, error) {
	var key int64
	err := c.retry(ctx, "deploy "+name, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
		resp, err := c.client.NewDeployResourceCommand().AddResource(model, name).Send(ctx)
		if err != nil {
			return err
		}
		key = resp.GetKey()
		return nil
	})
	return key, err
}

func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}

// retry runs fn with capped exponential backoff while the gateway reports a transient status.
func (c *Client) retry(ctx context.Context, operation string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !transient(err) || attempt >= c.opts.MaxRetries {
			return mapError(err, operation, attempt)
		}

		delay := c.opts.BaseDelay << attempt
		if delay > c.opts.MaxDelay {
			delay = c.opts.MaxDelay
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.NewTimeoutError("zeebe "+operation, ctx.Err())
		}
	}
}

func transient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

func mapError(err error, operation string, attempt int) error {
	wrapped := fmt.Errorf("zeebe %s failed after %d attempts: %w", operation, attempt+1, err)

	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return errors.NewTimeoutError("zeebe "+operation, wrapped)
	case codes.PermissionDenied, codes.Unauthenticated:
		return errors.NewConfigInvalidError(wrapped.Error())
	default:
		return errors.NewExternalServiceError("zeebe", wrapped)
	}
}
