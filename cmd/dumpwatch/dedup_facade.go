package main

import (
	"context"
	"time"

	"dumpwatch/internal/dedup"
	"dumpwatch/internal/ipc"
)

type dedupAPI interface {
	List(ctx context.Context) ([]ipc.DedupEntry, error)
	Forget(ctx context.Context, name string) (bool, error)
	Clear(ctx context.Context) (int64, error)
}

// --- IPC adapter ---

type dedupIPCAdapter struct {
	client *ipc.Client
}

func (a *dedupIPCAdapter) List(_ context.Context) ([]ipc.DedupEntry, error) {
	resp, err := a.client.DedupList()
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (a *dedupIPCAdapter) Forget(_ context.Context, name string) (bool, error) {
	resp, err := a.client.DedupForget(name)
	if err != nil {
		return false, err
	}
	return resp.Removed, nil
}

func (a *dedupIPCAdapter) Clear(_ context.Context) (int64, error) {
	resp, err := a.client.DedupClear()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

// --- Store adapter ---

type dedupStoreAdapter struct {
	store *dedup.Store
}

func (a *dedupStoreAdapter) List(ctx context.Context) ([]ipc.DedupEntry, error) {
	entries, err := a.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ipc.DedupEntry, 0, len(entries))
	for _, entry := range entries {
		recorded := ""
		if !entry.RecordedAt.IsZero() {
			recorded = entry.RecordedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, ipc.DedupEntry{Name: entry.Name, RecordedAt: recorded})
	}
	return out, nil
}

func (a *dedupStoreAdapter) Forget(ctx context.Context, name string) (bool, error) {
	return a.store.Forget(ctx, name)
}

func (a *dedupStoreAdapter) Clear(ctx context.Context) (int64, error) {
	return a.store.Clear(ctx)
}
