// Copyright 2025 Verba Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package subscribers

import (
	"encoding/json"
	"io"
	"time"

	"github.com/GunnyMarc/verba/pkg/output"
)

// JSONFormatter emits structured JSON output (when --json flag is present).
//
// Output format: One JSON object per line (JSON Lines format).
type JSONFormatter struct {
	encoder *json.Encoder
}

// NewJSONFormatter creates a new JSONFormatter subscriber.
func NewJSONFormatter(writer io.Writer) *JSONFormatter {
	// Compact JSON Lines format, no indentation
	return &JSONFormatter{
		encoder: json.NewEncoder(writer),
	}
}

// Name returns the subscriber identifier.
func (s *JSONFormatter) Name() string {
	return "json-formatter"
}

// ShouldHandle decides if this subscriber cares about the event.
// JSONFormatter handles everything EXCEPT diagnostic events.
func (s *JSONFormatter) ShouldHandle(event output.OutputEvent) bool {
	// Diagnostic events go to the structured logger
	return event.Type != output.EventDiag
}

// Handle processes an output event and renders it as JSON.
func (s *JSONFormatter) Handle(event output.OutputEvent) {
	jsonEvent := map[string]any{
		"type":      event.Type,
		"timestamp": event.Timestamp.Format(time.RFC3339),
	}

	if event.Message != "" {
		jsonEvent["message"] = event.Message
	}

	if event.Data != nil {
		jsonEvent["data"] = event.Data
	}

	if len(event.Metadata) > 0 {
		jsonEvent["metadata"] = event.Metadata
	}

	// Silently drop the event on encoding errors (e.g., broken pipe);
	// subscribers cannot propagate errors
	if err := s.encoder.Encode(jsonEvent); err != nil {
		return
	}
}
