package notify_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"dumpwatch/internal/artifact"
	"dumpwatch/internal/logging"
	"dumpwatch/internal/notify"
	"dumpwatch/internal/testsupport"
)

func batchOf(sizes ...int64) notify.Batch {
	batch := make(notify.Batch, 0, len(sizes))
	mod := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, size := range sizes {
		name := fmt.Sprintf("dump%d.dmp", i+1)
		batch = append(batch, artifact.Artifact{Name: name, Path: "/var/crash/" + name, Size: size, ModTime: mod})
	}
	return batch
}

func TestAttachmentBudgetIsStrict(t *testing.T) {
	policy := notify.Policy{Recipients: []string{"ops@example.com"}, IncludeAttachments: true, MaxAttachmentBytes: 1000}

	atBudget := notify.Compose(batchOf(600, 400), policy)
	if len(atBudget.Attachments) != 0 {
		t.Fatalf("sum equal to budget must not attach, got %v", atBudget.Attachments)
	}
	if !strings.Contains(atBudget.Body, "Files not attached") {
		t.Fatalf("expected note about skipped attachments, got %q", atBudget.Body)
	}

	underBudget := notify.Compose(batchOf(600, 399), policy)
	if diff := cmp.Diff([]string{"/var/crash/dump1.dmp", "/var/crash/dump2.dmp"}, underBudget.Attachments); diff != "" {
		t.Fatalf("attachments mismatch (-want +got):\n%s", diff)
	}

	policy.IncludeAttachments = false
	if msg := notify.Compose(batchOf(1), policy); len(msg.Attachments) != 0 || strings.Contains(msg.Body, "Files not attached") {
		t.Fatalf("attachments disabled should send plain text, got %+v", msg)
	}
}

func TestComposeListsArtifacts(t *testing.T) {
	msg := notify.Compose(batchOf(500000, 2048), notify.Policy{
		Recipients: []string{"ops@example.com"},
		Title:      "DMP in logs!",
		Subject:    "Server crashed",
	})
	if msg.Title != "DMP in logs!" {
		t.Fatalf("unexpected title %q", msg.Title)
	}
	for _, want := range []string{"Server crashed\n", "List of dumps:", "dump1.dmp", "488 KiB", "dump2.dmp", "2.0 KiB"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("expected %q in body:\n%s", want, msg.Body)
		}
	}
}

func TestDispatcherSend(t *testing.T) {
	tr := testsupport.NewFakeTransport()
	d := notify.NewDispatcher(tr, logging.NewNop())
	policy := notify.Policy{Recipients: []string{"ops@example.com"}, Title: "t", SendTimeout: time.Second}

	if err := d.Send(context.Background(), nil, policy); err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
	if tr.Calls() != 0 {
		t.Fatal("empty batch must not reach transport")
	}
	if err := d.Send(context.Background(), batchOf(10), policy); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sent := tr.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Body, "dump1.dmp") {
		t.Fatalf("unexpected sent messages %+v", sent)
	}
	if d.TransportName() != "fake" {
		t.Fatalf("unexpected transport name %q", d.TransportName())
	}
}

func TestDispatcherRequiresRecipients(t *testing.T) {
	tr := testsupport.NewFakeTransport()
	err := notify.NewDispatcher(tr, nil).Send(context.Background(), batchOf(1), notify.Policy{})
	var notifyErr *notify.Error
	if !errors.As(err, &notifyErr) || notifyErr.Kind != notify.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !errors.Is(err, notify.ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
	if tr.Calls() != 0 {
		t.Fatal("transport must not be called without recipients")
	}
}

func TestDispatcherSendTest(t *testing.T) {
	tr := testsupport.NewFakeTransport()
	d := notify.NewDispatcher(tr, nil)
	policy := notify.Policy{Recipients: []string{"ops@example.com"}, Title: "DMP in logs!"}

	if err := d.SendTest(context.Background(), policy); err != nil {
		t.Fatalf("SendTest: %v", err)
	}
	sent := tr.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one test message, got %d", len(sent))
	}
	if sent[0].Title != "DMP in logs! (test)" || len(sent[0].Attachments) != 0 {
		t.Fatalf("unexpected test message %+v", sent[0])
	}

	if err := d.SendTest(context.Background(), notify.Policy{}); notify.KindOf(err) != notify.KindConfiguration {
		t.Fatalf("expected configuration error without recipients, got %v", err)
	}
}

func TestDispatcherTimeoutIsTransportUnavailable(t *testing.T) {
	tr := testsupport.NewFakeTransport()
	tr.Block()
	defer tr.Release()

	d := notify.NewDispatcher(tr, nil)
	err := d.Send(context.Background(), batchOf(1), notify.Policy{
		Recipients:  []string{"ops@example.com"},
		SendTimeout: 20 * time.Millisecond,
	})
	if got := notify.KindOf(err); got != notify.KindTransportUnavailable {
		t.Fatalf("expected timeout classified as transport unavailable, got %s (%v)", got, err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want notify.Kind
	}{
		{"quota", notify.Wrap(notify.ErrQuota, "smtp", "send", errors.New("550 5.4.5")), notify.KindQuotaExceeded},
		{"rejected", notify.Wrap(notify.ErrRejected, "smtp", "rcpt", nil), notify.KindConfiguration},
		{"unavailable", notify.Wrap(notify.ErrUnavailable, "ntfy", "", errors.New("502")), notify.KindTransportUnavailable},
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), notify.KindTransportUnavailable},
		{"net", &net.OpError{Op: "dial", Err: errors.New("refused")}, notify.KindTransportUnavailable},
		{"unknown", errors.New("mystery"), notify.KindUnknown},
		{"already typed", &notify.Error{Kind: notify.KindQuotaExceeded}, notify.KindQuotaExceeded},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := notify.KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
	if notify.Classify(nil) != nil {
		t.Fatal("Classify(nil) must be nil")
	}
	if notify.KindConfiguration.Retryable() || !notify.KindQuotaExceeded.Retryable() {
		t.Fatal("unexpected retryable classification")
	}
}
