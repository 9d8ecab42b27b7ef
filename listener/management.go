package listener

import (
	"encoding/json"
	"net/http"
	"strconv"

	durable "github.com/goliatone/go-durable"
	"github.com/goliatone/go-durable/engine"
	"github.com/goliatone/go-durable/rpc"
	"github.com/goliatone/go-durable/wire"
	"github.com/goliatone/go-errors"
)

// Management routes.
const (
	PathHealth   = "/healthz"
	PathInstance = "/admin/instances/{id}"
)

// Query parameters accepted by the instance route. The task hub may also be
// passed in the Durable-TaskHub and Durable-ConnectionName headers.
const (
	ParamTaskHub    = "taskHub"
	ParamConnection = "connection"
	ParamShowInput  = "showInput"
)

type healthResponse struct {
	Status string `json:"status"`
	Hub    string `json:"hub,omitempty"`
}

// NewManagementHandler serves the legacy management API: a health probe and
// an instance status lookup.
func NewManagementHandler(hubName string, provider engine.Provider, logger durable.Logger) http.Handler {
	logger = durable.NormalizeLogger(logger)
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+PathHealth, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Hub: hubName})
	})

	mux.HandleFunc("GET "+PathInstance, func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		hub := firstNonEmpty(r.URL.Query().Get(ParamTaskHub), r.Header.Get("Durable-TaskHub"))
		conn := firstNonEmpty(r.URL.Query().Get(ParamConnection), r.Header.Get("Durable-ConnectionName"))
		showInput, _ := strconv.ParseBool(r.URL.Query().Get(ParamShowInput))

		if provider == nil {
			writeError(w, durable.NewError(durable.ErrTaskHubNotFound, "no engine provider configured", nil, nil))
			return
		}
		backend, err := provider.Backend(hub, conn)
		if err != nil {
			writeError(w, err)
			return
		}
		state, err := backend.GetState(r.Context(), id)
		if err != nil {
			durable.WithLoggerFields(logger.WithContext(r.Context()), map[string]any{
				"instance_id": id,
				"error":       err.Error(),
			}).Warn("management status lookup failed")
			writeError(w, err)
			return
		}
		if state == nil {
			writeError(w, durable.NewError(durable.ErrInstanceNotFound, "instance not found", nil,
				map[string]any{"instance_id": id}))
			return
		}
		writeJSON(w, http.StatusOK, wire.StateToWire(state, showInput))
	})

	return mux
}

func writeError(w http.ResponseWriter, err error) {
	status := errors.CodeInternal
	var ge *errors.Error
	if errors.As(err, &ge) {
		switch ge.Category {
		case errors.CategoryNotFound:
			status = errors.CodeNotFound
		case errors.CategoryBadInput, errors.CategoryValidation:
			status = errors.CodeBadRequest
		case errors.CategoryConflict:
			status = errors.CodeConflict
		case errors.CategoryOperation:
			status = http.StatusNotImplemented
		}
	}
	writeJSON(w, status, map[string]any{"error": rpc.ToError(err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
