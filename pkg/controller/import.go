package controller

import (
	"context"
	"fmt"

	"github.com/gaetancollaud/integrations-mqtt/pkg/config"
	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/utils"
	"github.com/rs/zerolog/log"
)

// ImportEntries stores the entries declared in the config file. An entry
// already stored with the same domain and unique id is left untouched.
func (c *Controller) ImportEntries(ctx context.Context, integrations []config.ConfigIntegration) error {
	for _, integration := range integrations {
		if _, ok := core.Lookup(integration.Domain); !ok {
			log.Warn().Str("domain", integration.Domain).Msg("Skipping import of unknown integration.")
			continue
		}
		existing, err := c.store.ListByDomain(ctx, integration.Domain)
		if err != nil {
			return err
		}
		if integration.UniqueId != "" && hasUniqueId(existing, integration.UniqueId) {
			log.Debug().
				Str("domain", integration.Domain).
				Str("unique_id", integration.UniqueId).
				Msg("Config entry already imported.")
			continue
		}
		if integration.UniqueId == "" && len(existing) > 0 {
			log.Debug().Str("domain", integration.Domain).Msg("Config entry without unique id already imported.")
			continue
		}

		title := integration.Title
		if title == "" {
			title = utils.TitleCase(integration.Domain)
		}
		entry := core.NewConfigEntry(integration.Domain, title, integration.UniqueId, core.SourceImport, copyData(integration.Data))
		entry.Options = copyData(integration.Options)
		if err := c.store.Add(ctx, entry); err != nil {
			return fmt.Errorf("error importing %s entry: %w", integration.Domain, err)
		}
		log.Info().Str("entry", entry.EntryId).Str("domain", entry.Domain).Msg("Config entry imported.")
	}
	return nil
}

func hasUniqueId(entries []*core.ConfigEntry, uniqueId string) bool {
	for _, entry := range entries {
		if entry.UniqueId == uniqueId {
			return true
		}
	}
	return false
}

func copyData(data map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(data))
	for k, v := range data {
		c[k] = v
	}
	return c
}
