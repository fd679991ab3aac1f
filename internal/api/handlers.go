package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/pqd/internal/pq"
	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

const maxBodySize = 64 << 10

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Revision:      s.reg.Revision().String(),
		Digest:        s.reg.Digest(),
		Procedures:    len(s.reg.Procedures()),
	})
}

func (s *Server) handleProcedures(w http.ResponseWriter, r *http.Request) {
	procs := s.reg.Procedures()
	resp := ProceduresResponse{
		Revision:   s.reg.Revision().String(),
		Digest:     s.reg.Digest(),
		Procedures: make([]ProcedureInfo, 0, len(procs)),
	}
	for _, p := range procs {
		resp.Procedures = append(resp.Procedures, procedureInfo(p))
	}
	respondJSON(w, http.StatusOK, resp)
}

func procedureInfo(p *registry.Procedure) ProcedureInfo {
	info := ProcedureInfo{
		ID:        int(p.ID),
		Name:      p.Name,
		Method:    p.Method,
		Code:      p.Code,
		Key:       p.Key,
		Args:      make([]ArgInfo, 0, len(p.Args)),
		Retval:    p.Reply.Retval,
		Usage:     p.Usage,
		Signature: p.Signature(),
	}
	if p.Reply.Value != wire.TypeNone {
		info.Value = p.Reply.Value.String()
	}
	for _, a := range p.Args {
		ai := ArgInfo{Name: a.Name, Type: a.Type.String()}
		if a.Const != nil {
			ai.Const = a.Const.String()
		}
		info.Args = append(info.Args, ai)
	}
	return info
}

// handleCall handles POST /procedures/{name}. The name may also be the
// numeric operation id.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	p, err := s.resolve(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req CallRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	raw, err := rawArgs(req.Args)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	args, err := p.ParseArgs(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.CallTimeout)
	defer cancel()

	// A call still queued when the request times out is dropped.
	var out pq.Outcome
	err = s.runner.Do(ctx, func(loopCtx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out = s.applier.Apply(loopCtx, p.ID, args...)
		return nil
	})
	if err != nil {
		s.logger.Warn("call not run", "procedure", p.Name, "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "daemon is not accepting calls: "+err.Error())
		return
	}
	respondJSON(w, statusFor(out), CallResponse{Outcome: out})
}

func (s *Server) resolve(name string) (*registry.Procedure, error) {
	if n, err := strconv.Atoi(name); err == nil {
		return s.reg.Lookup(registry.OperationID(n))
	}
	return s.reg.ByName(name)
}

// rawArgs turns JSON scalars into the strings the procedure parser takes.
func rawArgs(in []json.RawMessage) ([]string, error) {
	out := make([]string, len(in))
	for i, m := range in {
		var v any
		if err := json.Unmarshal(m, &v); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		switch x := v.(type) {
		case string:
			out[i] = x
		case bool:
			out[i] = strconv.FormatBool(x)
		case float64:
			out[i] = string(m)
		default:
			return nil, fmt.Errorf("argument %d: want number, boolean or string", i)
		}
	}
	return out, nil
}

func statusFor(out pq.Outcome) int {
	switch out.Kind {
	case pq.KindOK:
		return http.StatusOK
	case pq.KindUnknown, pq.KindInvalidArgument:
		return http.StatusBadRequest
	case pq.KindTimeout:
		return http.StatusGatewayTimeout
	case pq.KindTransport, pq.KindRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}
	respondJSON(w, http.StatusOK, OutcomesResponse{Entries: s.journal.SnapshotSince(since)})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.reg))
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
