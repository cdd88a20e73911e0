package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EntryStore persists config entries.
type EntryStore interface {
	List(ctx context.Context) ([]*ConfigEntry, error)
	ListByDomain(ctx context.Context, domain string) ([]*ConfigEntry, error)
	Get(ctx context.Context, entryId string) (*ConfigEntry, error)
	Add(ctx context.Context, entry *ConfigEntry) error
	Update(ctx context.Context, entry *ConfigEntry) error
	Delete(ctx context.Context, entryId string) error
}

// EntryLifecycle sets up and reloads entries once flows change them.
type EntryLifecycle interface {
	SetupEntry(ctx context.Context, entry *ConfigEntry) error
	ReloadEntry(ctx context.Context, entryId string) error
}

type stepper interface {
	Step(ctx context.Context, step string, input map[string]interface{}) (*FlowResult, error)
}

type flow struct {
	id      string
	domain  string
	step    string
	handler stepper
	context *FlowContext
	// Set for options flows.
	entry *ConfigEntry
}

// FlowManager keeps the flows in progress.
type FlowManager struct {
	store     EntryStore
	lifecycle EntryLifecycle
	hub       *Hub

	mu    sync.Mutex
	flows map[string]*flow
}

func NewFlowManager(store EntryStore, lifecycle EntryLifecycle, hub *Hub) *FlowManager {
	return &FlowManager{
		store:     store,
		lifecycle: lifecycle,
		hub:       hub,
		flows:     map[string]*flow{},
	}
}

// Init starts a config flow. The source is also the first step. The entryId
// is only used by reconfigure flows.
func (m *FlowManager) Init(ctx context.Context, domain string, source Source, entryId string, input map[string]interface{}) (*FlowResult, error) {
	integration, ok := Lookup(domain)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	if source == "" {
		source = SourceUser
	}

	flowContext := NewFlowContext(domain, source, m.hub, func(ctx context.Context) []*ConfigEntry {
		entries, err := m.store.ListByDomain(ctx, domain)
		if err != nil {
			log.Error().Err(err).Str("domain", domain).Msg("Error listing entries for flow.")
			return nil
		}
		return entries
	}, m.updateEntry)
	if source == SourceReconfigure {
		entry, err := m.store.Get(ctx, entryId)
		if err != nil {
			return nil, err
		}
		if entry.Domain != domain {
			return nil, fmt.Errorf("%w: %s is not a %s entry", ErrUnknownEntry, entryId, domain)
		}
		flowContext.Entry = entry
		flowContext.SetUniqueId(entry.UniqueId)
	}

	f := &flow{
		id:      uuid.New().String(),
		domain:  domain,
		step:    string(source),
		handler: integration.NewConfigFlow(flowContext),
		context: flowContext,
	}
	log.Debug().Str("flow", f.id).Str("domain", domain).Str("source", string(source)).Msg("Starting config flow.")
	return m.run(ctx, f, input)
}

// InitOptions starts the options flow of an entry.
func (m *FlowManager) InitOptions(ctx context.Context, entryId string, input map[string]interface{}) (*FlowResult, error) {
	entry, err := m.store.Get(ctx, entryId)
	if err != nil {
		return nil, err
	}
	integration, ok := Lookup(entry.Domain)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, entry.Domain)
	}
	handler := integration.NewOptionsFlow(entry)
	if handler == nil {
		return nil, fmt.Errorf("%s has no options: %w", entry.Domain, ErrUnsupported)
	}
	f := &flow{
		id:      uuid.New().String(),
		domain:  entry.Domain,
		step:    "init",
		handler: handler,
		entry:   entry,
	}
	return m.run(ctx, f, input)
}

// Configure submits user input to the current step of a flow.
func (m *FlowManager) Configure(ctx context.Context, flowId string, input map[string]interface{}) (*FlowResult, error) {
	m.mu.Lock()
	f, ok := m.flows[flowId]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, flowId)
	}
	if input == nil {
		input = map[string]interface{}{}
	}
	return m.run(ctx, f, input)
}

func (m *FlowManager) Abort(flowId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flows[flowId]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlow, flowId)
	}
	delete(m.flows, flowId)
	return nil
}

// InProgress returns the ids of the running flows.
func (m *FlowManager) InProgress() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.flows))
	for id := range m.flows {
		ids = append(ids, id)
	}
	return ids
}

func (m *FlowManager) run(ctx context.Context, f *flow, input map[string]interface{}) (*FlowResult, error) {
	result, err := f.handler.Step(ctx, f.step, input)
	if err != nil {
		m.remove(f.id)
		return nil, fmt.Errorf("error in %s flow step '%s': %w", f.domain, f.step, err)
	}
	result.FlowId = f.id
	result.Handler = f.domain

	switch result.Type {
	case FlowResultForm:
		f.step = result.StepId
		m.mu.Lock()
		m.flows[f.id] = f
		m.mu.Unlock()
	case FlowResultCreateEntry:
		m.remove(f.id)
		if f.entry != nil {
			return result, m.finishOptions(ctx, f, result)
		}
		return result, m.finishConfig(ctx, f, result)
	case FlowResultAbort:
		log.Debug().Str("flow", f.id).Str("reason", result.Reason).Msg("Flow aborted.")
		m.remove(f.id)
	default:
		m.remove(f.id)
		return nil, fmt.Errorf("unknown flow result type '%s'", result.Type)
	}
	return result, nil
}

func (m *FlowManager) finishConfig(ctx context.Context, f *flow, result *FlowResult) error {
	entry := NewConfigEntry(f.domain, result.Title, f.context.UniqueId(), f.context.Source, result.Data)
	if err := m.store.Add(ctx, entry); err != nil {
		return fmt.Errorf("error storing config entry: %w", err)
	}
	result.EntryId = entry.EntryId
	log.Info().Str("entry", entry.EntryId).Str("domain", entry.Domain).Str("title", entry.Title).Msg("Config entry created.")
	if err := m.lifecycle.SetupEntry(ctx, entry); err != nil {
		// The entry is kept and set up again on the next reload.
		log.Error().Err(err).Str("entry", entry.EntryId).Msg("Error setting up new config entry.")
	}
	return nil
}

func (m *FlowManager) finishOptions(ctx context.Context, f *flow, result *FlowResult) error {
	entry := f.entry.Clone()
	entry.Options = result.Data
	if entry.Options == nil {
		entry.Options = map[string]interface{}{}
	}
	result.EntryId = entry.EntryId
	return m.updateEntry(ctx, entry)
}

func (m *FlowManager) updateEntry(ctx context.Context, entry *ConfigEntry) error {
	if err := m.store.Update(ctx, entry); err != nil {
		return fmt.Errorf("error updating config entry: %w", err)
	}
	if err := m.lifecycle.ReloadEntry(ctx, entry.EntryId); err != nil {
		log.Error().Err(err).Str("entry", entry.EntryId).Msg("Error reloading config entry.")
	}
	return nil
}

func (m *FlowManager) remove(flowId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, flowId)
}
