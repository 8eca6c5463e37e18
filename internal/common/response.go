package common

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorBody is the payload under "error" in every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Data writes the success envelope {"data": v}.
func Data(w http.ResponseWriter, status int, v any) {
	JSON(w, status, struct {
		Data any `json:"data"`
	}{Data: v})
}

// List writes {"data": items, "pagination": page} and mirrors the total in
// X-Total-Count.
func List(w http.ResponseWriter, items any, page Pagination) {
	w.Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	JSON(w, http.StatusOK, struct {
		Data       any        `json:"data"`
		Pagination Pagination `json:"pagination"`
	}{Data: items, Pagination: page})
}

// JSONError writes the error envelope {"error": {...}}.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, struct {
		Error ErrorBody `json:"error"`
	}{Error: ErrorBody{Code: code, Message: message, Details: details}})
}
