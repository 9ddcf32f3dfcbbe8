/*
dto.go - Request/response payloads for the HTTP API

PURPOSE:
  Wire-level shapes only. Domain types (ledger.Metric, ledger.Trend,
  analytics.AnomalyReport, nlq.Response) serialize directly; this file
  holds the request envelopes and the error shape.
*/
package api

import "encoding/json"

// IngestRequest wraps a raw source export. The payload is passed to the
// flattener untouched.
type IngestRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// NLQRequest is one natural-language question. ConversationID may be
// empty to start a new conversation.
type NLQRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// TraceRowsResponse wraps trace listings.
type TraceRowsResponse struct {
	Rows any `json:"rows"`
}

// ErrorResponse is the uniform error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
