package api

import (
	"encoding/json"

	"github.com/mattjoyce/pqd/internal/journal"
	"github.com/mattjoyce/pqd/internal/pq"
)

// CallRequest is the JSON body for POST /procedures/{name}. Each argument
// is a JSON number, boolean or string.
type CallRequest struct {
	Args []json.RawMessage `json:"args"`
}

// CallResponse wraps the outcome of a call.
type CallResponse struct {
	Outcome pq.Outcome `json:"outcome"`
}

// ArgInfo describes one procedure argument.
type ArgInfo struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Const string `json:"const,omitempty"`
}

// ProcedureInfo is one entry of GET /procedures.
type ProcedureInfo struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Method    string    `json:"method"`
	Code      uint32    `json:"code"`
	Key       string    `json:"key,omitempty"`
	Args      []ArgInfo `json:"args"`
	Retval    bool      `json:"retval"`
	Value     string    `json:"value,omitempty"`
	Usage     string    `json:"usage,omitempty"`
	Signature string    `json:"signature"`
}

// ProceduresResponse is returned by GET /procedures.
type ProceduresResponse struct {
	Revision   string          `json:"revision"`
	Digest     string          `json:"registry_digest"`
	Procedures []ProcedureInfo `json:"procedures"`
}

// OutcomesResponse is returned by GET /outcomes.
type OutcomesResponse struct {
	Entries []journal.Entry `json:"entries"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Revision      string `json:"revision"`
	Digest        string `json:"registry_digest"`
	Procedures    int    `json:"procedures"`
}
