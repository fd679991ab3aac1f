package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/pqd/internal/journal"
)

const keepAliveEvery = 15 * time.Second

// eventFilter keeps entries whose type is listed in ?type=a,b. An empty
// filter keeps everything.
type eventFilter map[string]struct{}

func parseEventFilter(r *http.Request) eventFilter {
	raw := r.URL.Query().Get("type")
	if raw == "" {
		return nil
	}
	f := eventFilter{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			f[t] = struct{}{}
		}
	}
	return f
}

func (f eventFilter) keep(e journal.Entry) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[e.Type]
	return ok
}

// handleEvents streams journal entries as server-sent events, resuming
// after Last-Event-ID when the client sends one.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	filter := parseEventFilter(r)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Subscribe first: an entry published during the backlog write is
	// either in the snapshot or on ch, and the ID check drops the overlap.
	ch, unsubscribe := s.journal.Subscribe()
	defer unsubscribe()

	sent := lastEventID(r)
	send := func(e journal.Entry) bool {
		if e.ID <= sent {
			return true
		}
		sent = e.ID
		if !filter.keep(e) {
			return true
		}
		return writeSSE(w, e) == nil
	}

	for _, e := range s.journal.SnapshotSince(sent) {
		if !send(e) {
			return
		}
	}
	flusher.Flush()

	tick := time.NewTicker(keepAliveEvery)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok || !send(e) {
				return
			}
		case <-tick.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func lastEventID(r *http.Request) int64 {
	n, err := strconv.ParseInt(r.Header.Get("Last-Event-ID"), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// writeSSE writes one event. Data is single-line JSON.
func writeSSE(w io.Writer, e journal.Entry) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.ID, e.Type, e.Data)
	return err
}
