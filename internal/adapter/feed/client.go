package feed

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// StreamClient wraps an HTTP client with a circuit breaker for establishing
// long-lived streaming connections. Reconnect pacing lives in the caller;
// the breaker's job is to stop hammering an upstream that is hard-down.
type StreamClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// StreamClientConfig holds configuration for the stream client
type StreamClientConfig struct {
	EnableCircuitBreaker  bool
	MaxFailures           uint32
	CircuitTimeout        time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultStreamClientConfig returns default configuration values
func DefaultStreamClientConfig() StreamClientConfig {
	return StreamClientConfig{
		EnableCircuitBreaker:  getEnvBool("FEED_CIRCUIT_BREAKER_ENABLED", true),
		MaxFailures:           uint32(getEnvInt("FEED_CIRCUIT_BREAKER_MAX_FAILURES", 5)),
		CircuitTimeout:        time.Duration(getEnvInt("FEED_CIRCUIT_BREAKER_TIMEOUT_SECONDS", 30)) * time.Second,
		ResponseHeaderTimeout: time.Duration(getEnvInt("FEED_RESPONSE_HEADER_TIMEOUT_SECONDS", 15)) * time.Second,
	}
}

// NewStreamClient creates a new stream client. The underlying HTTP client
// has no overall timeout: the response body is an event stream that stays
// open indefinitely. Connection establishment is still bounded through the
// transport's header timeout.
func NewStreamClient(config StreamClientConfig) *StreamClient {
	client := &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		},
	}

	var breaker *gobreaker.CircuitBreaker
	if config.EnableCircuitBreaker {
		settings := gobreaker.Settings{
			Name:        "feed-stream",
			MaxRequests: 1,
			Interval:    0, // Don't reset counts automatically
			Timeout:     config.CircuitTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= config.MaxFailures
			},
		}
		breaker = gobreaker.NewCircuitBreaker(settings)
	}

	return &StreamClient{
		client:  client,
		breaker: breaker,
	}
}

// Do executes the request through the circuit breaker. A non-2xx response is
// treated as a connection failure and counts against the breaker.
func (c *StreamClient) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.doChecked(req)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doChecked(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, fmt.Errorf("circuit breaker is open: %w", err)
		}
		return nil, err
	}

	return result.(*http.Response), nil
}

func (c *StreamClient) doChecked(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return resp, nil
}

// getEnvInt reads an integer from environment variable or returns default
func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool reads a boolean from environment variable or returns default
func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
