package jsonrpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server serves the JSON-RPC API over HTTP POST.
type Server struct {
	handler *Handler
	timeout time.Duration
	log     zerolog.Logger
}

// NewServer creates a JSON-RPC server with a per-request timeout.
func NewServer(handler *Handler, timeout time.Duration, log zerolog.Logger) *Server {
	return &Server{
		handler: handler,
		timeout: timeout,
		log:     log.With().Str("component", "jsonrpc").Logger(),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: codeParse, Message: "parse error"},
		})
		return
	}
	if req.Method == "" {
		writeResponse(w, Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: codeInvalidRequest, Message: "missing method"},
			ID:      req.ID,
		})
		return
	}

	done := make(chan Response, 1)
	go func() {
		done <- s.dispatch(req)
	}()

	select {
	case resp := <-done:
		writeResponse(w, resp)
	case <-time.After(s.timeout):
		s.log.Warn().Str("method", req.Method).Msg("request timed out")
		writeResponse(w, Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: codeInternal, Message: "request timed out"},
			ID:      req.ID,
		})
	}
}

func (s *Server) dispatch(req Request) Response {
	result, err := s.handler.Handle(req.Method, req.Params)
	if err != nil {
		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &Error{Code: codeInternal, Message: err.Error()}
		}
		s.log.Debug().Str("method", req.Method).Str("error", rpcErr.Message).Msg("request rejected")
		return Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
	}
	return Response{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
