package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// decodeStream reads newline-delimited JSON objects from r and hands each one
// to yield until the stream ends or yield returns false.
func decodeStream[T any](r io.Reader, yield func(T) bool) error {
	decoder := json.NewDecoder(r)
	for {
		var msg T
		if err := decoder.Decode(&msg); errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("decode stream: %w", err)
		}
		if !yield(msg) {
			return nil
		}
	}
}

// apiError extracts a readable message from a non-200 Ollama response.
func apiError(status int, body io.Reader) error {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("ollama API error: status %d: %s", status, payload.Error)
	}
	return fmt.Errorf("ollama API error: status %d, body: %s", status, string(raw))
}
