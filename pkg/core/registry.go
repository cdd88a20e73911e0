package core

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/gaetancollaud/integrations-mqtt/pkg/mqtt"
)

// Hub gives integrations access to the shared transports.
type Hub struct {
	Mqtt       mqtt.Client
	Gateway    gateway.Transport
	HTTP       *http.Client
	Dispatcher *Dispatcher
	CacheDir   string
}

// Runtime is a set up config entry.
type Runtime interface {
	Entities() []Entity
	Unload(ctx context.Context) error
}

type Integration interface {
	Domain() string
	NewConfigFlow(flowContext *FlowContext) ConfigFlow
	// NewOptionsFlow returns nil when the integration has no options.
	NewOptionsFlow(entry *ConfigEntry) OptionsFlow
	Setup(ctx context.Context, hub *Hub, entry *ConfigEntry) (Runtime, error)
}

var (
	registryMu   sync.RWMutex
	integrations = map[string]Integration{}
)

// Register stores an integration into the registry. Register() is called
// from init() in each integration package.
func Register(integration Integration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := integrations[integration.Domain()]; ok {
		panic(fmt.Sprintf("integration '%s' registered twice", integration.Domain()))
	}
	integrations[integration.Domain()] = integration
}

func Lookup(domain string) (Integration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	integration, ok := integrations[domain]
	return integration, ok
}

// Domains returns the registered domains sorted.
func Domains() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	domains := make([]string, 0, len(integrations))
	for domain := range integrations {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}
