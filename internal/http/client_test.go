package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	filiphttp "github.com/SystemsPurge/FiLiP/internal/http"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTokenManager for testing.
type MockTokenManager struct {
	token string
	err   error
}

func (m *MockTokenManager) GetToken(ctx context.Context) (string, error) {
	return m.token, m.err
}

func (m *MockTokenManager) RefreshToken(ctx context.Context) error {
	return nil
}

func (m *MockTokenManager) SetToken(token string, expiresAt time.Time) {
	m.token = token
}

// MockLogger for testing.
type MockLogger struct {
	logs []map[string]any
}

func (l *MockLogger) Debug(msg string, fields map[string]any) {
	l.logs = append(l.logs, map[string]any{"level": "debug", "msg": msg, "fields": fields})
}

func (l *MockLogger) Info(msg string, fields map[string]any) {
	l.logs = append(l.logs, map[string]any{"level": "info", "msg": msg, "fields": fields})
}

func (l *MockLogger) Warn(msg string, fields map[string]any) {
	l.logs = append(l.logs, map[string]any{"level": "warn", "msg": msg, "fields": fields})
}

func (l *MockLogger) Error(msg string, fields map[string]any) {
	l.logs = append(l.logs, map[string]any{"level": "error", "msg": msg, "fields": fields})
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Do(t *testing.T) {
	t.Parallel()
	t.Run("successful request", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/v2/entities/Room1", request.URL.Path)
			assert.Equal(t, "GET", request.Method)
			assert.Equal(t, "Bearer test-token", request.Header.Get("Authorization"))
			assert.Equal(t, "application/json", request.Header.Get("Accept"))
			assert.NotEmpty(t, request.Header.Get("Fiware-Correlator"))

			response := map[string]string{"id": "Room1", "type": "Room"}
			_ = json.NewEncoder(writer).Encode(response)
		}))
		defer server.Close()

		tokenManager := &MockTokenManager{token: "test-token"}
		client := filiphttp.NewClient(server.URL, tokenManager)

		req := &filiphttp.Request{
			Method: "GET",
			Path:   "/v2/entities/Room1",
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var result map[string]string

		err = json.Unmarshal(resp.Body, &result)
		require.NoError(t, err)
		assert.Equal(t, "Room1", result["id"])
		assert.Equal(t, "Room", result["type"])
	})

	t.Run("request with query parameters", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/v2/entities", request.URL.Path)
			assert.Equal(t, "limit=2&type=Room", request.URL.RawQuery)
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil)

		req := &filiphttp.Request{
			Method: "GET",
			Path:   "/v2/entities",
			Query:  url.Values{"type": []string{"Room"}, "limit": []string{"2"}},
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("request with body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "POST", request.Method)
			assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

			var body map[string]string

			_ = json.NewDecoder(request.Body).Decode(&body)
			assert.Equal(t, "Room1", body["id"])

			writer.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil)

		req := &filiphttp.Request{
			Method: "POST",
			Path:   "/v2/entities",
			Body:   map[string]string{"id": "Room1", "type": "Room"},
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 201, resp.StatusCode)
	})

	t.Run("broker error envelope", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusNotFound)

			response := ngsi.BrokerError{
				ErrorType:   "NotFound",
				Description: "The requested entity has not been found. Check type and id",
			}
			_ = json.NewEncoder(writer).Encode(response)
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil)

		req := &filiphttp.Request{
			Method: "GET",
			Path:   "/v2/entities/missing",
		}

		resp, err := client.Do(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, 404, resp.StatusCode)

		brokerErr := &ngsi.BrokerError{}
		ok := errors.As(err, &brokerErr)
		require.True(t, ok)
		assert.Equal(t, 404, brokerErr.StatusCode)
		assert.Equal(t, "NotFound", brokerErr.ErrorType)
		assert.Contains(t, brokerErr.Description, "has not been found")
	})

	t.Run("error status without envelope", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusBadGateway)
			_, _ = writer.Write([]byte("<html>bad gateway</html>"))
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil,
			filiphttp.WithRetryConfig(0, time.Millisecond, time.Millisecond))

		resp, err := client.Get(context.Background(), "/v2/entities", nil)
		require.Error(t, err)
		assert.Equal(t, 502, resp.StatusCode)

		transportErr := &ngsi.TransportError{}
		ok := errors.As(err, &transportErr)
		require.True(t, ok)
		assert.Equal(t, 502, transportErr.StatusCode)
	})

	t.Run("custom headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "custom-value", request.Header.Get("X-Custom-Header"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil)

		req := &filiphttp.Request{
			Method: "GET",
			Path:   "/v2/entities",
			Headers: map[string]string{
				"X-Custom-Header": "custom-value",
			},
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("tenant headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "smartcity", request.Header.Get("Fiware-Service"))
			assert.Equal(t, "/building", request.Header.Get("Fiware-ServicePath"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil, filiphttp.WithTenant("smartcity", "/building"))

		resp, err := client.Get(context.Background(), "/v2/entities", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("caller correlator wins", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "fixed-correlator", request.Header.Get("Fiware-Correlator"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil)

		req := &filiphttp.Request{
			Method: "GET",
			Path:   "/v2/entities",
			Headers: map[string]string{
				"Fiware-Correlator": "fixed-correlator",
			},
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("token manager failure", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			t.Error("request should not reach the broker")
		}))
		defer server.Close()

		tokenManager := &MockTokenManager{err: ngsi.ErrSomeError}
		client := filiphttp.NewClient(server.URL, tokenManager)

		_, err := client.Get(context.Background(), "/v2/entities", nil)
		require.Error(t, err)
		require.ErrorIs(t, err, ngsi.ErrSomeError)
		assert.Contains(t, err.Error(), "failed to get authentication token")
	})

	t.Run("with debug logging", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(writer).Encode(map[string]string{"result": "ok"})
		}))
		defer server.Close()

		logger := &MockLogger{}
		client := filiphttp.NewClient(server.URL, nil, filiphttp.WithLogger(logger), filiphttp.WithDebug(true))

		req := &filiphttp.Request{
			Method: "GET",
			Path:   "/v2/entities",
		}

		_, err := client.Do(context.Background(), req)
		require.NoError(t, err)

		// Should have logged request and response
		assert.Len(t, logger.logs, 2)
		assert.Equal(t, "HTTP Request", logger.logs[0]["msg"])
		assert.Equal(t, "HTTP Response", logger.logs[1]["msg"])
	})
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Methods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		fn     func(*filiphttp.Client, context.Context) (*filiphttp.Response, error)
	}{
		{
			name:   "GET",
			method: "GET",
			fn: func(c *filiphttp.Client, ctx context.Context) (*filiphttp.Response, error) {
				return c.Get(ctx, "/test", nil)
			},
		},
		{
			name:   "POST",
			method: "POST",
			fn: func(c *filiphttp.Client, ctx context.Context) (*filiphttp.Response, error) {
				return c.Post(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "PUT",
			method: "PUT",
			fn: func(c *filiphttp.Client, ctx context.Context) (*filiphttp.Response, error) {
				return c.Put(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "PATCH",
			method: "PATCH",
			fn: func(c *filiphttp.Client, ctx context.Context) (*filiphttp.Response, error) {
				return c.Patch(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "DELETE",
			method: "DELETE",
			fn: func(c *filiphttp.Client, ctx context.Context) (*filiphttp.Response, error) {
				return c.Delete(ctx, "/test")
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				assert.Equal(t, testCase.method, request.Method)
				assert.Equal(t, "/test", request.URL.Path)
				writer.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := filiphttp.NewClient(server.URL, nil)
			resp, err := testCase.fn(client, context.Background())
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
		})
	}
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_RetryLogic(t *testing.T) {
	t.Parallel()
	t.Run("retries GET on 5xx errors", func(t *testing.T) {
		t.Parallel()

		attempts := 0

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts++
			if attempts < 3 {
				writer.WriteHeader(http.StatusInternalServerError)
			} else {
				writer.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil,
			filiphttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 3, attempts)
	})

	t.Run("retries on rate limiting", func(t *testing.T) {
		t.Parallel()

		attempts := 0

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts++
			if attempts < 2 {
				writer.WriteHeader(http.StatusTooManyRequests)
			} else {
				writer.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil,
			filiphttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 2, attempts)
	})

	t.Run("does not retry on client errors", func(t *testing.T) {
		t.Parallel()

		attempts := 0

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts++

			writer.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil,
			filiphttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.Error(t, err)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, 1, attempts) // Should not retry
	})

	t.Run("does not retry POST on 5xx errors", func(t *testing.T) {
		t.Parallel()

		attempts := 0

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts++

			writer.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil,
			filiphttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Post(context.Background(), "/v2/op/update", map[string]string{"actionType": "append"})
		require.Error(t, err)
		assert.Equal(t, 500, resp.StatusCode)
		assert.Equal(t, 1, attempts)
	})

	t.Run("retries POST when marked idempotent", func(t *testing.T) {
		t.Parallel()

		attempts := 0

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts++
			if attempts < 2 {
				writer.WriteHeader(http.StatusInternalServerError)
			} else {
				writer.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil,
			filiphttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		req := &filiphttp.Request{
			Method:     "POST",
			Path:       "/v2/op/query",
			Body:       map[string]any{"entities": []map[string]string{{"idPattern": ".*"}}},
			Idempotent: true,
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 2, attempts)
	})

	t.Run("retries DELETE on 5xx errors", func(t *testing.T) {
		t.Parallel()

		attempts := 0

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts++
			if attempts < 2 {
				writer.WriteHeader(http.StatusServiceUnavailable)
			} else {
				writer.WriteHeader(http.StatusNoContent)
			}
		}))
		defer server.Close()

		client := filiphttp.NewClient(server.URL, nil,
			filiphttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Delete(context.Background(), "/v2/entities/Room1")
		require.NoError(t, err)
		assert.Equal(t, 204, resp.StatusCode)
		assert.Equal(t, 2, attempts)
	})
}

func TestClient_Interceptors(t *testing.T) {
	t.Parallel()
	t.Run("request interceptor can add headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "interceptor-value", request.Header.Get("X-Interceptor"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		chain := ngsi.NewInterceptorChain()
		chain.AddRequestInterceptor(ngsi.HeaderInterceptor(map[string]string{
			"X-Interceptor": "interceptor-value",
		}))

		client := filiphttp.NewClient(server.URL, nil, filiphttp.WithInterceptors(chain))

		resp, err := client.Get(context.Background(), "/v2/entities", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("request interceptor failure aborts the request", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			t.Error("request should not reach the broker")
		}))
		defer server.Close()

		chain := ngsi.NewInterceptorChain()
		chain.AddRequestInterceptor(func(_ context.Context, _ *ngsi.Request) error {
			return ngsi.ErrBoom
		})

		client := filiphttp.NewClient(server.URL, nil, filiphttp.WithInterceptors(chain))

		_, err := client.Get(context.Background(), "/v2/entities", nil)
		require.ErrorIs(t, err, ngsi.ErrBoom)
	})

	t.Run("response interceptor observes status", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		var seenStatus int

		chain := ngsi.NewInterceptorChain()
		chain.AddResponseInterceptor(func(_ context.Context, _ *ngsi.Request, resp *ngsi.Response) error {
			seenStatus = resp.StatusCode

			return nil
		})

		client := filiphttp.NewClient(server.URL, nil, filiphttp.WithInterceptors(chain))

		_, err := client.Get(context.Background(), "/v2/entities", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, seenStatus)
	})
}
