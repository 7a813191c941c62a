package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	"github.com/SystemsPurge/FiLiP/internal/constants"
	internalhttp "github.com/SystemsPurge/FiLiP/internal/http"
)

// NewTestClient creates a Client wired to a test server base URL,
// without authentication.
func NewTestClient(baseURL string) *Client {
	httpClient := internalhttp.NewClient(baseURL, nil)

	client := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}

	client.initializeResourceClients()

	return client
}

// recordedRequest captures one request received by a stub broker.
type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// stubResponse is one scripted broker response.
type stubResponse struct {
	status  int
	headers map[string]string
	body    string
}

// jsonResponse scripts a response with a JSON body.
func jsonResponse(status int, body string) stubResponse {
	return stubResponse{status: status, body: body}
}

// createdResponse scripts the 201 with Location header the broker
// sends when it creates a subscription or registration.
func createdResponse(location string) stubResponse {
	return stubResponse{
		status:  http.StatusCreated,
		headers: map[string]string{"Location": location},
	}
}

// noContentResponse scripts an empty 204.
func noContentResponse() stubResponse {
	return stubResponse{status: http.StatusNoContent}
}

// errorResponse scripts an NGSIv2 error envelope.
func errorResponse(status int, errorType, description string) stubResponse {
	body, _ := json.Marshal(map[string]string{
		"error":       errorType,
		"description": description,
	})

	return stubResponse{status: status, body: string(body)}
}

// pageResponse scripts one page of a listing, carrying the total count
// header the broker sets when options=count is requested.
func pageResponse(total int, body string) stubResponse {
	return stubResponse{
		status:  http.StatusOK,
		headers: map[string]string{constants.HeaderTotalCount: strconv.Itoa(total)},
		body:    body,
	}
}

// stubBroker is an httptest server that records every request and
// serves scripted responses in order. The last response repeats once
// the script is exhausted; an empty script answers 200 with no body.
type stubBroker struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses []stubResponse
	server    *httptest.Server
}

// newStubBroker starts a stub broker serving the given responses.
// Callers must Close it.
func newStubBroker(responses ...stubResponse) *stubBroker {
	stub := &stubBroker{responses: responses}
	stub.server = httptest.NewServer(http.HandlerFunc(stub.handle))

	return stub
}

func (s *stubBroker) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	index := len(s.requests)
	s.requests = append(s.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})

	resp := stubResponse{status: http.StatusOK}

	if len(s.responses) > 0 {
		if index >= len(s.responses) {
			index = len(s.responses) - 1
		}

		resp = s.responses[index]
	}
	s.mu.Unlock()

	for key, value := range resp.headers {
		w.Header().Set(key, value)
	}

	if resp.body != "" {
		w.Header().Set("Content-Type", "application/json")
	}

	w.WriteHeader(resp.status)

	if resp.body != "" {
		_, _ = w.Write([]byte(resp.body))
	}
}

// URL returns the stub's base URL.
func (s *stubBroker) URL() string {
	return s.server.URL
}

// Close shuts the stub broker down.
func (s *stubBroker) Close() {
	s.server.Close()
}

// Requests returns a copy of every request recorded so far.
func (s *stubBroker) Requests() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]recordedRequest(nil), s.requests...)
}

// LastRequest returns the most recent request, or a zero value when
// none arrived.
func (s *stubBroker) LastRequest() recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.requests) == 0 {
		return recordedRequest{}
	}

	return s.requests[len(s.requests)-1]
}

// RequestCount returns how many requests the stub broker received.
func (s *stubBroker) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.requests)
}
