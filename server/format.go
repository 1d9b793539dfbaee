package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// formatter writes responses as JSON, or MessagePack when the request asks
// for format=msgpack. Bodies are encoded in full before the status is sent.
type formatter struct{}

func (f formatter) send(w http.ResponseWriter, status int, contentType string, body []byte) error {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, err := w.Write(body)
	return err
}

func (f formatter) encode(req *http.Request, data any) (string, []byte, error) {
	if req.URL.Query().Get("format") == "msgpack" {
		b, err := msgpack.Marshal(data)
		return "application/msgpack", b, err
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		return "", nil, err
	}
	return "application/json", buf.Bytes(), nil
}

type errorBody struct {
	Error     string `json:"error" msgpack:"error"`
	Field     string `json:"field,omitempty" msgpack:"field,omitempty"`
	RequestID string `json:"request_id,omitempty" msgpack:"request_id,omitempty"`
}
