// Package all registers every integration.
package all

import (
	_ "github.com/gaetancollaud/integrations-mqtt/pkg/integrations/daikin"
	_ "github.com/gaetancollaud/integrations-mqtt/pkg/integrations/envisalink"
	_ "github.com/gaetancollaud/integrations-mqtt/pkg/integrations/hdmicec"
	_ "github.com/gaetancollaud/integrations-mqtt/pkg/integrations/iss"
	_ "github.com/gaetancollaud/integrations-mqtt/pkg/integrations/localtuya"
	_ "github.com/gaetancollaud/integrations-mqtt/pkg/integrations/rest"
	_ "github.com/gaetancollaud/integrations-mqtt/pkg/integrations/scrape"
	_ "github.com/gaetancollaud/integrations-mqtt/pkg/integrations/xiaomimiio"
)
