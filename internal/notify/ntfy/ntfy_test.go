package ntfy_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dumpwatch/internal/config"
	"dumpwatch/internal/notify"
	"dumpwatch/internal/notify/ntfy"
)

type capture struct {
	mu       sync.Mutex
	paths    []string
	titles   []string
	bodies   []string
	auth     []string
	status   int
	response string
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.paths = append(c.paths, r.URL.Path)
	c.titles = append(c.titles, r.Header.Get("Title"))
	c.bodies = append(c.bodies, string(body))
	c.auth = append(c.auth, r.Header.Get("Authorization"))
	status := c.status
	c.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(c.response))
}

func TestSendPublishesToEveryTopic(t *testing.T) {
	rec := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	tr := ntfy.New(config.Ntfy{Server: srv.URL + "/", Token: "tk_secret"}, srv.Client())
	err := tr.Send(context.Background(), notify.Message{
		Title:      "DMP in logs!",
		Body:       "List of dumps:\n  a.dmp\n",
		Recipients: []string{"ops-alerts", "dev"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if diff := cmp.Diff([]string{"/ops-alerts", "/dev"}, rec.paths); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	if rec.titles[0] != "DMP in logs!" {
		t.Fatalf("unexpected title %q", rec.titles[0])
	}
	if !strings.Contains(rec.bodies[1], "a.dmp") {
		t.Fatalf("unexpected body %q", rec.bodies[1])
	}
	if rec.auth[0] != "Bearer tk_secret" {
		t.Fatalf("unexpected auth header %q", rec.auth[0])
	}
}

func TestSendClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   notify.Kind
	}{
		{http.StatusTooManyRequests, notify.KindQuotaExceeded},
		{http.StatusForbidden, notify.KindConfiguration},
		{http.StatusBadRequest, notify.KindConfiguration},
		{http.StatusBadGateway, notify.KindTransportUnavailable},
		{http.StatusInternalServerError, notify.KindTransportUnavailable},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			rec := &capture{status: tc.status, response: "nope"}
			srv := httptest.NewServer(http.HandlerFunc(rec.handler))
			defer srv.Close()

			tr := ntfy.New(config.Ntfy{Server: srv.URL}, srv.Client())
			err := tr.Send(context.Background(), notify.Message{Body: "x", Recipients: []string{"a", "b"}})
			if got := notify.KindOf(err); got != tc.want {
				t.Fatalf("status %d classified as %s, want %s (%v)", tc.status, got, tc.want, err)
			}
			if len(rec.paths) != 1 {
				t.Fatalf("expected send to stop after first failure, got %d requests", len(rec.paths))
			}
		})
	}
}

func TestSendServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := ntfy.New(config.Ntfy{Server: url}, nil)
	err := tr.Send(context.Background(), notify.Message{Body: "x", Recipients: []string{"a"}})
	if got := notify.KindOf(err); got != notify.KindTransportUnavailable {
		t.Fatalf("expected transport unavailable, got %s (%v)", got, err)
	}
}
