package coretest

import (
	"context"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
)

// Lifecycle records the setups and reloads requested by flows.
type Lifecycle struct {
	SetupErr error
	Setups   []string
	Reloads  []string
}

func (l *Lifecycle) SetupEntry(_ context.Context, entry *core.ConfigEntry) error {
	l.Setups = append(l.Setups, entry.EntryId)
	return l.SetupErr
}

func (l *Lifecycle) ReloadEntry(_ context.Context, entryId string) error {
	l.Reloads = append(l.Reloads, entryId)
	return nil
}

// FlowContext returns a flow context backed by the store. Updated entries
// are persisted in the store.
func FlowContext(domain string, source core.Source, store *MemoryStore, hub *core.Hub) *core.FlowContext {
	return core.NewFlowContext(domain, source, hub,
		func(ctx context.Context) []*core.ConfigEntry {
			entries, _ := store.ListByDomain(ctx, domain)
			return entries
		},
		func(ctx context.Context, entry *core.ConfigEntry) error {
			return store.Update(ctx, entry)
		})
}

// ReconfigureContext returns a reconfigure flow context targeting entry.
func ReconfigureContext(entry *core.ConfigEntry, store *MemoryStore, hub *core.Hub) *core.FlowContext {
	flowContext := FlowContext(entry.Domain, core.SourceReconfigure, store, hub)
	flowContext.Entry = entry
	flowContext.SetUniqueId(entry.UniqueId)
	return flowContext
}

var _ core.EntryLifecycle = (*Lifecycle)(nil)
