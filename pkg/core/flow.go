package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

type FlowResultType string

const (
	FlowResultForm        FlowResultType = "form"
	FlowResultCreateEntry FlowResultType = "create_entry"
	FlowResultAbort       FlowResultType = "abort"
)

type FieldType string

const (
	FieldString   FieldType = "string"
	FieldInt      FieldType = "int"
	FieldFloat    FieldType = "float"
	FieldBool     FieldType = "bool"
	FieldPassword FieldType = "password"
	FieldSelect   FieldType = "select"
	FieldMapping  FieldType = "mapping"
)

// Field describes one input of a form.
type Field struct {
	Key      string      `json:"key"`
	Type     FieldType   `json:"type"`
	Required bool        `json:"required"`
	Default  interface{} `json:"default,omitempty"`
	Options  []string    `json:"options,omitempty"`
}

type Schema []Field

// Validate applies defaults and coerces values in place. It returns the
// "required" error for missing required fields and "invalid_value" for values
// that do not fit the field type.
func (s Schema) Validate(input map[string]interface{}) map[string]string {
	errors := map[string]string{}
	for _, field := range s {
		value, present := input[field.Key]
		if present {
			if str, ok := value.(string); ok && strings.TrimSpace(str) == "" && field.Type != FieldBool {
				present = false
			}
		}
		if !present {
			if field.Default != nil {
				input[field.Key] = field.Default
				continue
			}
			if field.Required {
				errors[field.Key] = "required"
			}
			continue
		}
		var err error
		switch field.Type {
		case FieldInt:
			input[field.Key], err = cast.ToIntE(value)
		case FieldFloat:
			input[field.Key], err = cast.ToFloat64E(value)
		case FieldBool:
			input[field.Key], err = cast.ToBoolE(value)
		case FieldString, FieldPassword:
			input[field.Key], err = cast.ToStringE(value)
		case FieldSelect:
			var str string
			str, err = cast.ToStringE(value)
			if err == nil && !contains(field.Options, str) {
				err = fmt.Errorf("%s is not one of %v", str, field.Options)
			}
			input[field.Key] = str
		case FieldMapping:
			input[field.Key], err = cast.ToStringMapE(value)
		}
		if err != nil {
			errors[field.Key] = "invalid_value"
		}
	}
	return errors
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// FlowResult is what every step of a flow returns.
type FlowResult struct {
	Type        FlowResultType         `json:"type"`
	FlowId      string                 `json:"flow_id"`
	Handler     string                 `json:"handler"`
	StepId      string                 `json:"step_id,omitempty"`
	Schema      Schema                 `json:"data_schema,omitempty"`
	Errors      map[string]string      `json:"errors,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Description map[string]string      `json:"description_placeholders,omitempty"`
	EntryId     string                 `json:"entry_id,omitempty"`
}

func ShowForm(step string, schema Schema, errors map[string]string) *FlowResult {
	return &FlowResult{Type: FlowResultForm, StepId: step, Schema: schema, Errors: errors}
}

func CreateEntry(title string, data map[string]interface{}) *FlowResult {
	return &FlowResult{Type: FlowResultCreateEntry, Title: title, Data: data}
}

func Abort(reason string) *FlowResult {
	return &FlowResult{Type: FlowResultAbort, Reason: reason}
}

// ConfigFlow drives the creation of a config entry. A nil input asks the
// step for its form.
type ConfigFlow interface {
	Step(ctx context.Context, step string, input map[string]interface{}) (*FlowResult, error)
}

// OptionsFlow edits the options of an existing entry, starting at step
// "init". Its create_entry data replaces the options.
type OptionsFlow interface {
	Step(ctx context.Context, step string, input map[string]interface{}) (*FlowResult, error)
}

// FlowContext exposes the host to a running flow.
type FlowContext struct {
	Domain string
	Source Source
	// Entry is the entry being reconfigured, nil otherwise.
	Entry *ConfigEntry
	Hub   *Hub

	uniqueId string
	entries  func(ctx context.Context) []*ConfigEntry
	update   func(ctx context.Context, entry *ConfigEntry) error
}

// NewFlowContext builds a flow context. entries lists the entries of the
// domain and update persists and reloads a changed entry.
func NewFlowContext(domain string, source Source, hub *Hub, entries func(ctx context.Context) []*ConfigEntry, update func(ctx context.Context, entry *ConfigEntry) error) *FlowContext {
	return &FlowContext{
		Domain:  domain,
		Source:  source,
		Hub:     hub,
		entries: entries,
		update:  update,
	}
}

func (f *FlowContext) Entries(ctx context.Context) []*ConfigEntry {
	if f.entries == nil {
		return nil
	}
	return f.entries(ctx)
}

func (f *FlowContext) SetUniqueId(uniqueId string) {
	f.uniqueId = uniqueId
}

func (f *FlowContext) UniqueId() string {
	return f.uniqueId
}

// AbortIfUniqueIdConfigured returns an already_configured abort when an
// entry with the flow unique id exists. Non nil updates are merged into the
// existing entry data first, which is then reloaded.
func (f *FlowContext) AbortIfUniqueIdConfigured(ctx context.Context, updates map[string]interface{}) (*FlowResult, error) {
	if f.uniqueId == "" {
		return nil, nil
	}
	for _, entry := range f.Entries(ctx) {
		if entry.UniqueId != f.uniqueId {
			continue
		}
		if len(updates) > 0 && changed(entry.Data, updates) {
			updated := entry.Clone()
			for k, v := range updates {
				updated.Data[k] = v
			}
			if err := f.UpdateEntry(ctx, updated); err != nil {
				return nil, err
			}
		}
		return Abort("already_configured"), nil
	}
	return nil, nil
}

// UpdateEntry persists an entry and reloads it.
func (f *FlowContext) UpdateEntry(ctx context.Context, entry *ConfigEntry) error {
	if f.update == nil {
		return ErrUnsupported
	}
	return f.update(ctx, entry)
}

// UpdateReloadAndAbort merges data into the reconfigured entry and aborts
// the flow with the reason.
func (f *FlowContext) UpdateReloadAndAbort(ctx context.Context, data map[string]interface{}, reason string) (*FlowResult, error) {
	if f.Entry == nil {
		return nil, fmt.Errorf("no entry to update: %w", ErrUnknownEntry)
	}
	updated := f.Entry.Clone()
	for k, v := range data {
		updated.Data[k] = v
	}
	if err := f.UpdateEntry(ctx, updated); err != nil {
		return nil, err
	}
	return Abort(reason), nil
}

func changed(data map[string]interface{}, updates map[string]interface{}) bool {
	for k, v := range updates {
		if fmt.Sprint(data[k]) != fmt.Sprint(v) {
			return true
		}
	}
	return false
}

// Input helpers used by the flows.

func InputString(input map[string]interface{}, key string) string {
	return strings.TrimSpace(cast.ToString(input[key]))
}

func InputInt(input map[string]interface{}, key string, def int) int {
	v, ok := input[key]
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

func InputBool(input map[string]interface{}, key string, def bool) bool {
	v, ok := input[key]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}
