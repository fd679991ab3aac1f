package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/pqd/internal/api"
	"github.com/mattjoyce/pqd/internal/journal"
)

// --- Message types ---

type entryMsg journal.Entry

type healthMsg api.HealthzResponse

type errMsg error

type streamClosedMsg struct{}
type reconnectMsg struct{}

// --- Commands ---

// subscribe streams /events into ch, resuming after lastID. It returns
// streamClosedMsg when the connection drops.
func subscribe(ctx context.Context, baseURL, token string, lastID int64, ch chan<- journal.Entry) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/events", nil)
		if err != nil {
			return errMsg(err)
		}
		setToken(req, token)
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return streamClosedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("events: %s", resp.Status))
		}

		_ = readEvents(resp.Body, func(e journal.Entry) {
			select {
			case ch <- e:
			case <-ctx.Done():
			}
		})
		return streamClosedMsg{}
	}
}

// readEvents parses a server-sent event stream. Comment lines are skipped.
func readEvents(r io.Reader, fn func(journal.Entry)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var current journal.Entry
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data.Len() > 0 {
				current.Data = json.RawMessage(data.String())
				current.At = entryTime(current.Data)
				fn(current)
			}
			current = journal.Entry{}
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				current.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			current.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			data.WriteString(line[6:])
		}
	}
	return scanner.Err()
}

// entryTime uses the call timestamp when the payload carries one.
func entryTime(data json.RawMessage) time.Time {
	var v struct {
		At time.Time `json:"at"`
	}
	if err := json.Unmarshal(data, &v); err == nil && !v.At.IsZero() {
		return v.At
	}
	return time.Now()
}

// receive waits for the next entry from ch.
func receive(ch <-chan journal.Entry) tea.Cmd {
	return func() tea.Msg {
		return entryMsg(<-ch)
	}
}

func setToken(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// fetchHealth queries /healthz.
func fetchHealth(baseURL string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h api.HealthzResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return healthMsg(h)
}
