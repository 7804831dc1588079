package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"chesstrainer/pkg/wire"
)

// ProbeHealth checks relay liveness before any connect attempt. A
// non-ok body or transport failure maps to ErrServerUnavailable.
func ProbeHealth(serverURL string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.TrimRight(serverURL, "/") + "/health")
	req.Header.SetMethod(fasthttp.MethodGet)

	c := &fasthttp.Client{ReadTimeout: timeout, WriteTimeout: timeout}
	if err := c.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrServerUnavailable, resp.StatusCode())
	}

	var hs wire.HealthStatus
	if err := json.Unmarshal(resp.Body(), &hs); err != nil || hs.Status != "ok" {
		return fmt.Errorf("%w: unexpected health body", ErrServerUnavailable)
	}
	return nil
}
