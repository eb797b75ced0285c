package esplora

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/blockwatch-network/blockwatch-daemon/pkg/circuitbreaker"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/httputil"
)

type esplora struct {
	apiURL string
	client *httputil.Client
	cb     *gobreaker.CircuitBreaker
}

// NewService returns a new esplora service as an explorer.Service interface.
// The given timeout, in milliseconds, bounds every request to the remote API.
func NewService(apiURL string, requestTimeoutMilliseconds int) (explorer.Service, error) {
	service := &esplora{
		apiURL: apiURL,
		client: httputil.NewClient(
			time.Duration(requestTimeoutMilliseconds) * time.Millisecond,
		),
		cb: circuitbreaker.NewCircuitBreaker("esplora"),
	}

	if err := service.healthCheck(); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}

	return service, nil
}

func (e *esplora) healthCheck() error {
	_, err := e.GetBlockHeight()
	return err
}

// getRequest performs a GET through the circuit breaker and normalizes
// transient remote failures into explorer.ErrProviderUnavailable.
func (e *esplora) getRequest(url string) (int, string, error) {
	res, err := e.cb.Execute(func() (interface{}, error) {
		status, resp, err := e.client.NewHTTPRequest("GET", url, "", nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", explorer.ErrProviderUnavailable, err)
		}
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: status %d", explorer.ErrProviderUnavailable, status)
		}
		return httpResponse{status, resp}, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = fmt.Errorf("%w: %s", explorer.ErrProviderUnavailable, err)
		}
		return 0, "", err
	}

	r := res.(httpResponse)
	return r.status, r.body, nil
}

type httpResponse struct {
	status int
	body   string
}
