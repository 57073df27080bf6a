// Package httpjson writes the JSON bodies shared by every REST handler.
package httpjson

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error shape of every non-2xx REST response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Error(w http.ResponseWriter, status int, code, msg string) {
	Write(w, status, ErrorBody{Code: code, Message: msg})
}
