package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"papertrader/internal/ports"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements the ports.PriceSource interface using the go-binance
// spot API. Only public market-data endpoints are used, so API keys are
// optional.
type Client struct {
	spot   *binance.Client
	logger ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance price source adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the global binance.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	return &Client{spot: client, logger: cfg.Logger}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1100, -1101, -1102, -1104, -1121: // Parameter/symbol errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrFeedUnavailable
		}
		wrappedErr := fmt.Errorf("%s failed: %w (API code %d: %s)", operation, mappedErr, apiErr.Code, apiErr.Message)
		c.logger.Error(ctx, wrappedErr, "Binance API error", fields)
		return wrappedErr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", operation, err)
	}

	// Not an API error; most likely transport-level.
	wrappedErr := fmt.Errorf("%s failed: %w: %v", operation, ports.ErrConnectionFailed, err)
	c.logger.Error(ctx, wrappedErr, "Binance request error", fields)
	return wrappedErr
}

// GetPrice retrieves the last price for a single exchange symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetPrice"
	prices, err := c.spot.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no ticker data returned for symbol %s: %w", symbol, ports.ErrPriceUnavailable)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s' for %s: %w", prices[0].Price, symbol, ports.ErrPriceUnavailable)
		c.logger.Error(ctx, parseErr, op+": price parse failed")
		return 0, parseErr
	}
	return price, nil
}

// GetPrices retrieves the last prices for the given exchange symbols in one
// batch call. Symbols the exchange does not report are omitted from the
// result; individual parse failures are logged and skipped.
func (c *Client) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	op := "GetPrices"
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	prices, err := c.spot.NewListPricesService().Symbols(symbols).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	out := make(map[string]float64, len(prices))
	for _, p := range prices {
		value, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			c.logger.Warn(ctx, op+": skipping unparsable price", map[string]interface{}{"symbol": p.Symbol, "price": p.Price})
			continue
		}
		out[p.Symbol] = value
	}
	return out, nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.spot.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}
