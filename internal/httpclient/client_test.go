package httpclient

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	c := New(cfg)
	httpmock.ActivateNonDefault(c.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestNew_Defaults(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		c := New(nil)
		assert.Equal(t, DefaultTimeout, c.defaultTimeout)
		assert.Equal(t, defaultUserAgent, c.userAgent)
	})

	t.Run("zero values use defaults", func(t *testing.T) {
		c := New(&Config{})
		assert.Equal(t, DefaultTimeout, c.defaultTimeout)
		assert.Equal(t, defaultUserAgent, c.userAgent)
	})

	t.Run("custom values", func(t *testing.T) {
		c := New(&Config{DefaultTimeout: 5 * time.Second, UserAgent: "Test/1.0"})
		assert.Equal(t, 5*time.Second, c.defaultTimeout)
		assert.Equal(t, "Test/1.0", c.userAgent)
	})
}

func TestDoJSON_SendsHeadersAndBody(t *testing.T) {
	c := newMockedClient(t, &Config{UserAgent: "FieldScan-Test"})

	httpmock.RegisterResponder(http.MethodPost, "https://backend.test/api/echo",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "FieldScan-Test", req.Header.Get("User-Agent"))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
			_, hasDeadline := req.Context().Deadline()
			assert.True(t, hasDeadline, "default timeout must be applied")
			return httpmock.NewStringResponse(http.StatusCreated, `{"ok":true}`), nil
		})

	headers := http.Header{}
	headers.Set("Authorization", "Bearer abc")

	resp, err := c.DoJSON(context.Background(), http.MethodPost, "https://backend.test/api/echo", headers, map[string]string{"code": "PU"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestDoJSON_NonSuccessIsNotAnError(t *testing.T) {
	c := newMockedClient(t, nil)
	httpmock.RegisterResponder(http.MethodGet, "https://backend.test/missing",
		httpmock.NewStringResponder(http.StatusNotFound, `{"error":"no route"}`))

	resp, err := c.DoJSON(context.Background(), http.MethodGet, "https://backend.test/missing", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDo_TransportErrorRunsHooks(t *testing.T) {
	c := newMockedClient(t, nil)
	httpmock.RegisterResponder(http.MethodGet, "https://backend.test/down",
		httpmock.NewErrorResponder(assert.AnError))

	var before, after atomic.Int32
	c.SetBeforeRequestHook(func(*http.Request) { before.Add(1) })
	c.SetAfterResponseHook(func(_ *http.Request, _ *http.Response, err error, _ time.Duration) {
		assert.Error(t, err)
		after.Add(1)
	})

	_, err := c.DoJSON(context.Background(), http.MethodGet, "https://backend.test/down", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(1), after.Load())
}

func TestDo_NilRequest(t *testing.T) {
	t.Parallel()
	_, err := New(nil).Do(context.Background(), nil)
	require.Error(t, err)
}
