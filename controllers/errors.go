package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"go-storefront/middleware"
	"go-storefront/models"
)

var (
	errInvalidInput = &models.Error{Kind: models.KindValidation, Code: "invalid_input", Message: "Invalid input"}
	errUnauthorized = &models.Error{Kind: "unauthorized", Code: "unauthorized", Message: "Unauthorized"}
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Kind  string `json:"kind"`
}

var kindStatus = map[models.ErrorKind]int{
	models.KindValidation:            http.StatusBadRequest,
	models.KindNotFound:              http.StatusNotFound,
	models.KindStateConflict:         http.StatusConflict,
	models.KindProviderUnavailable:   http.StatusServiceUnavailable,
	models.KindInvalidSignature:      http.StatusUnauthorized,
	models.KindAuthorizationRejected: http.StatusPaymentRequired,
	models.KindOrderCreationFailed:   http.StatusInternalServerError,
	"unauthorized":                   http.StatusUnauthorized,
}

// writeError maps a checkout error to its status. Only the public message is
// serialized; causes are logged for 5xx responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *models.Error
	if !errors.As(err, &e) {
		log.Printf("internal error method=%s path=%s: %v", r.Method, r.URL.Path, err)
		respond(w, http.StatusInternalServerError, errorBody{Error: "internal server error", Code: "internal", Kind: "internal"})
		return
	}

	status, ok := kindStatus[e.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.Printf("request failed method=%s path=%s code=%s: %v", r.Method, r.URL.Path, e.Code, err)
	}
	respond(w, status, errorBody{Error: e.Message, Code: e.Code, Kind: string(e.Kind)})
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidInput
	}
	return nil
}

func customer(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.CustomerID(r.Context())
	if !ok {
		writeError(w, r, errUnauthorized)
	}
	return id, ok
}
