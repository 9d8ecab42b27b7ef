package rpc

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/goliatone/go-errors"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeInvokeFailed   = -32000
	CodeUnsupported    = -32001
	CodeNotFound       = -32004
	CodeConflict       = -32009
)

const jsonRPCVersion = "2.0"

// Paths served by HTTPHandler.
const (
	PathInvoke    = "/rpc"
	PathEndpoints = "/rpc/endpoints"
)

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id,omitempty"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *Error `json:"data,omitempty"`
}

// HTTPHandler exposes server as JSON-RPC 2.0 over HTTP. Request headers are
// copied, lower-cased, into the request envelope metadata so handlers can
// route on them.
func HTTPHandler(server *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathInvoke, func(w http.ResponseWriter, r *http.Request) {
		handleInvoke(server, w, r)
	})
	mux.HandleFunc(PathEndpoints, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"endpoints": server.Endpoints()})
	})
	return mux
}

func handleInvoke(server *Server, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, jsonRPCResponse{
			JSONRPC: jsonRPCVersion,
			Error:   &jsonRPCError{Code: CodeInvalidRequest, Message: "method not allowed"},
		})
		return
	}

	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, jsonRPCResponse{
			JSONRPC: jsonRPCVersion,
			Error: &jsonRPCError{
				Code:    CodeParseError,
				Message: "invalid JSON payload",
				Data:    &Error{Code: "PARSE_ERROR", Message: err.Error()},
			},
		})
		return
	}
	if req.Method == "" {
		writeJSON(w, http.StatusBadRequest, jsonRPCResponse{
			JSONRPC: jsonRPCVersion,
			ID:      req.ID,
			Error:   &jsonRPCError{Code: CodeInvalidRequest, Message: "method is required"},
		})
		return
	}

	prototype, err := server.NewRequestForMethod(req.Method)
	if err != nil {
		writeError(w, req.ID, CodeMethodNotFound, "method not found", err)
		return
	}

	payload, err := decodeRPCPayload(req.Params, prototype)
	if err != nil {
		writeError(w, req.ID, CodeInvalidParams, "invalid method params", err)
		return
	}
	if merger, ok := payload.(headerMerger); ok {
		merger.mergeHeaders(requestHeaders(r.Header))
	}

	result, err := server.Invoke(r.Context(), req.Method, payload)
	if err != nil {
		code, msg := jsonRPCCode(err)
		writeError(w, req.ID, code, msg, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonRPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      req.ID,
		Result:  result,
	})
}

func requestHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		out[strings.ToLower(k)] = v[0]
	}
	return out
}

func decodeRPCPayload(raw json.RawMessage, prototype any) (any, error) {
	if prototype == nil {
		if hasPayload(raw) {
			return nil, errors.New("method does not accept params", errors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidParams)
		}
		return nil, nil
	}
	if !hasPayload(raw) {
		return prototype, nil
	}

	value := reflect.ValueOf(prototype)
	if !value.IsValid() {
		return nil, errors.New("invalid method request type", errors.CategoryInternal)
	}

	if value.Kind() == reflect.Ptr {
		if err := json.Unmarshal(raw, prototype); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "decode params").
				WithTextCode(ErrCodeInvalidParams)
		}
		return prototype, nil
	}

	target := reflect.New(value.Type())
	if err := json.Unmarshal(raw, target.Interface()); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "decode params").
			WithTextCode(ErrCodeInvalidParams)
	}
	return target.Elem().Interface(), nil
}

func hasPayload(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

// jsonRPCCode maps a go-errors category onto a JSON-RPC error code.
func jsonRPCCode(err error) (int, string) {
	var ge *errors.Error
	if !errors.As(err, &ge) {
		return CodeInvokeFailed, "rpc invocation failed"
	}
	switch ge.Category {
	case errors.CategoryBadInput, errors.CategoryValidation:
		return CodeInvalidParams, "invalid request"
	case errors.CategoryNotFound:
		if ge.TextCode == ErrCodeMethodNotFound {
			return CodeMethodNotFound, "method not found"
		}
		return CodeNotFound, "not found"
	case errors.CategoryOperation:
		return CodeUnsupported, "operation not supported"
	case errors.CategoryConflict:
		return CodeConflict, "conflict"
	case errors.CategoryInternal:
		return CodeInternalError, "internal error"
	default:
		return CodeInvokeFailed, "rpc invocation failed"
	}
}

// ToError converts err into the transport error shape.
func ToError(err error) *Error {
	if err == nil {
		return nil
	}
	var ge *errors.Error
	if !errors.As(err, &ge) {
		return &Error{Code: "INVOKE_FAILED", Message: err.Error()}
	}
	out := &Error{
		Code:      ge.TextCode,
		Message:   ge.Message,
		Category:  ge.Category.String(),
		Retryable: ge.Category == errors.CategoryExternal || ge.Category == errors.CategoryRateLimit,
	}
	if out.Code == "" {
		out.Code = "INVOKE_FAILED"
	}
	if len(ge.Metadata) > 0 {
		out.Details = make(map[string]any, len(ge.Metadata))
		for k, v := range ge.Metadata {
			out.Details[k] = v
		}
	}
	return out
}

func writeError(w http.ResponseWriter, id any, code int, msg string, err error) {
	writeJSON(w, http.StatusOK, jsonRPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error: &jsonRPCError{
			Code:    code,
			Message: msg,
			Data:    ToError(err),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
