// Package fakerpc provides a scriptable JSON-RPC node for tests which exercise the network paths
// of the deployer without a real chain.
package fakerpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Handler answers a single JSON-RPC method call. It returns either a result which is marshalled
// into the response, or an *Error which is sent as the JSON-RPC error object.
type Handler func(params json.RawMessage) (any, *Error)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Server is a fake JSON-RPC node. By default it answers eth_blockNumber and eth_chainId so that
// clients pass their health check; every other method must be registered with Handle.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[string]int
}

// New starts a fake node which is closed automatically when the test is done.
func New(t *testing.T, chainID uint64) *Server {
	t.Helper()

	s := &Server{
		handlers: map[string]Handler{},
		calls:    map[string]int{},
	}
	s.Handle("eth_blockNumber", Result("0x1"))
	s.Handle("eth_chainId", Result(fmt.Sprintf("0x%x", chainID)))

	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)

	return s
}

// Handle registers the handler for a method, replacing any previous one.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[method] = h
}

// Calls returns how many times a method was called.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[method]
}

// Result returns a Handler which always answers with v.
func Result(v any) Handler {
	return func(json.RawMessage) (any, *Error) { return v, nil }
}

// Fail returns a Handler which always answers with the given JSON-RPC error.
func Fail(code int, message string) Handler {
	return func(json.RawMessage) (any, *Error) {
		return nil, &Error{Code: code, Message: message}
	}
}

// Null returns a Handler which answers with a JSON null result, the way a node answers
// eth_getTransactionReceipt for a transaction that is still pending.
func Null() Handler {
	return func(json.RawMessage) (any, *Error) { return json.RawMessage("null"), nil }
}

// Receipt returns a Handler for eth_getTransactionReceipt which answers with a receipt of the
// requested transaction, mined in blockNumber with the given status.
func Receipt(status, blockNumber uint64) Handler {
	return func(params json.RawMessage) (any, *Error) {
		var args []string
		if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
			return nil, &Error{Code: -32602, Message: "invalid params"}
		}

		return map[string]any{
			"type":              "0x0",
			"transactionHash":   args[0],
			"transactionIndex":  "0x0",
			"blockHash":         "0x" + strings.Repeat("11", 32),
			"blockNumber":       fmt.Sprintf("0x%x", blockNumber),
			"cumulativeGasUsed": "0x5208",
			"gasUsed":           "0x5208",
			"effectiveGasPrice": "0x77359400",
			"logsBloom":         "0x" + strings.Repeat("00", 256),
			"logs":              []any{},
			"status":            fmt.Sprintf("0x%x", status),
		}, nil
	}
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls[req.Method]++
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	resp := response{JSONRPC: "2.0", ID: req.ID}
	if !ok {
		resp.Error = &Error{Code: -32601, Message: fmt.Sprintf("the method %s does not exist/is not available", req.Method)}
	} else {
		resp.Result, resp.Error = h(req.Params)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
