package smtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/wneessen/go-mail"

	"dumpwatch/internal/config"
	"dumpwatch/internal/notify"
)

func TestClassifyProviderResponses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want notify.Kind
	}{
		{
			name: "gmail daily quota",
			err:  errors.New("send failed: 550 5.4.5 Daily user sending quota exceeded"),
			want: notify.KindQuotaExceeded,
		},
		{
			name: "rate limited",
			err:  errors.New("send failed: 452 4.5.3 Too many messages"),
			want: notify.KindQuotaExceeded,
		},
		{
			name: "bad credentials",
			err:  errors.New("dial failed: 535 5.7.8 Username and Password not accepted"),
			want: notify.KindConfiguration,
		},
		{
			name: "network",
			err:  fmt.Errorf("dial failed: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}),
			want: notify.KindTransportUnavailable,
		},
		{
			name: "dns",
			err:  fmt.Errorf("dial failed: %w", &net.DNSError{Err: "no such host", Name: "smtp.invalid"}),
			want: notify.KindTransportUnavailable,
		},
		{
			name: "unrecognised",
			err:  errors.New("something odd"),
			want: notify.KindUnknown,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := notify.KindOf(classify(tc.err)); got != tc.want {
				t.Fatalf("classify(%q) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestBuildMessageRejectsBadRecipient(t *testing.T) {
	tr := New(config.SMTP{Host: "smtp.example.com", Port: 587, From: "dumps@example.com", TLS: config.TLSMandatory}, time.Second)
	_, err := tr.buildMessage(notify.Message{Title: "t", Body: "b", Recipients: []string{"not an address"}})
	if notify.KindOf(err) != notify.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	tr := New(config.SMTP{Host: "smtp.example.com", Port: 587, From: "dumps@example.com"}, time.Second)
	m, err := tr.buildMessage(notify.Message{
		Title:      "DMP in logs!",
		Body:       "List of dumps:\n  a.dmp\n",
		Recipients: []string{"ops@example.com", "dev@example.com"},
	})
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	if got := m.GetToString(); len(got) != 2 {
		t.Fatalf("unexpected recipients %v", got)
	}
	if got := m.GetGenHeader(mail.HeaderSubject); len(got) != 1 || got[0] != "DMP in logs!" {
		t.Fatalf("unexpected subject %v", got)
	}
}

func TestTLSPolicy(t *testing.T) {
	cases := map[string]mail.TLSPolicy{
		config.TLSNone:          mail.NoTLS,
		config.TLSOpportunistic: mail.TLSOpportunistic,
		config.TLSMandatory:     mail.TLSMandatory,
		"":                      mail.TLSMandatory,
	}
	for in, want := range cases {
		if got := tlsPolicy(in); got != want {
			t.Fatalf("tlsPolicy(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSendUnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	tr := New(config.SMTP{Host: "127.0.0.1", Port: port, From: "dumps@example.com", TLS: config.TLSNone}, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = tr.Send(ctx, notify.Message{Title: "t", Body: "b", Recipients: []string{"ops@example.com"}})
	if notify.KindOf(err) != notify.KindTransportUnavailable {
		t.Fatalf("expected transport unavailable, got %v", err)
	}
}
