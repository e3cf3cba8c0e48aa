// Package ntfy publishes dump notifications to ntfy topics.
//
// Each recipient is a topic under the configured server. Messages are text
// only; attachments are never uploaded.
package ntfy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"dumpwatch/internal/config"
	"dumpwatch/internal/notify"
)

const (
	transportName = "ntfy"
	userAgent     = "dumpwatch/0.1"
)

// Transport posts messages to ntfy.
type Transport struct {
	server string
	token  string
	client *http.Client
}

// New builds a transport from the [ntfy] configuration section. A nil client
// uses http.DefaultClient; the dispatcher bounds each send by context.
func New(cfg config.Ntfy, client *http.Client) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{
		server: strings.TrimRight(cfg.Server, "/"),
		token:  cfg.Token,
		client: client,
	}
}

func (t *Transport) Name() string { return transportName }

// Send publishes msg to every recipient topic, stopping at the first failure.
func (t *Transport) Send(ctx context.Context, msg notify.Message) error {
	for _, topic := range msg.Recipients {
		if err := t.publish(ctx, topic, msg); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) publish(ctx context.Context, topic string, msg notify.Message) error {
	endpoint := t.server + "/" + url.PathEscape(strings.TrimSpace(topic))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return notify.Wrap(notify.ErrRejected, transportName, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	req.Header.Set("Tags", "warning,dumpwatch")
	req.Header.Set("Priority", "high")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return notify.Wrap(notify.ErrUnavailable, transportName, "publish "+topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	statusErr := fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	return notify.Wrap(markerForStatus(resp.StatusCode), transportName, "publish "+topic, statusErr)
}

func markerForStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return notify.ErrQuota
	case code == http.StatusBadRequest, code == http.StatusUnauthorized, code == http.StatusForbidden,
		code == http.StatusNotFound, code == http.StatusRequestEntityTooLarge:
		return notify.ErrRejected
	default:
		return notify.ErrUnavailable
	}
}
