package envisalink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/rs/zerolog/log"
)

const (
	commandSet = "set"

	actionDisarm   = "DISARM"
	actionArmHome  = "ARM_HOME"
	actionArmAway  = "ARM_AWAY"
	actionArmNight = "ARM_NIGHT"
	actionTrigger  = "TRIGGER"
)

var errCodeRequired = errors.New("a code is required")

// Payload sent by Home Assistant on the command topic.
type alarmCommand struct {
	Action string `json:"action"`
	Code   string `json:"code"`
}

// PartitionEntity is the alarm control panel of one partition.
type PartitionEntity struct {
	core.CoordinatorEntity[PanelStatus]
	transport gateway.Transport
	device    string
	partition int
	code      string
	panicType string
}

func newPartitionEntity(coordinator *core.Coordinator[PanelStatus], transport gateway.Transport, entryId string, device homeassistant.Device, gatewayDevice string, partition int, config Config) *PartitionEntity {
	return &PartitionEntity{
		CoordinatorEntity: core.NewCoordinatorEntity(coordinator, core.EntityDescription{
			UniqueId: fmt.Sprintf("%s_partition_%d", entryId, partition),
			Name:     fmt.Sprintf("%s Partition %d", config.AlarmName, partition),
			Domain:   homeassistant.AlarmControlPanel,
			Device:   device,
		}),
		transport: transport,
		device:    gatewayDevice,
		partition: partition,
		code:      config.Code,
		panicType: config.PanicType,
	}
}

func (e *PartitionEntity) status() (PartitionStatus, bool) {
	status, ok := e.Coordinator.Data().Partitions[e.partition]
	return status, ok
}

func (e *PartitionEntity) State() core.EntityState {
	status, _ := e.status()
	return core.EntityState{
		State: status.State(),
		Attributes: map[string]interface{}{
			"partition":  e.partition,
			"ready":      status.Ready,
			"trouble":    status.Trouble,
			"ac_present": status.AcPresent,
			"chime":      status.Chime,
			"alpha":      status.Alpha,
		},
	}
}

func (e *PartitionEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	return &homeassistant.AlarmControlPanelConfig{
		BaseConfig:         e.BaseConfig(),
		StateTopic:         topics.State,
		CommandTopic:       topics.Command(commandSet),
		CommandTemplate:    `{"action": "{{ action }}", "code": "{{ code }}"}`,
		CodeArmRequired:    false,
		CodeDisarmRequired: e.code == "",
		SupportedFeatures:  []string{"arm_home", "arm_away", "arm_night", "trigger"},
	}
}

func (e *PartitionEntity) Commands() []string {
	return []string{commandSet}
}

func (e *PartitionEntity) HandleCommand(ctx context.Context, command string, payload string) error {
	if command != commandSet {
		return fmt.Errorf("%w: command %s", core.ErrUnsupported, command)
	}
	cmd, err := parseAlarmCommand(payload)
	if err != nil {
		return err
	}
	// The configured code is used when none is typed.
	code := cmd.Code
	if code == "" {
		code = e.code
	}

	request := map[string]interface{}{"partition": e.partition}
	switch cmd.Action {
	case actionDisarm:
		request["command"] = "disarm"
	case actionArmHome:
		request["command"] = "arm_stay"
	case actionArmAway:
		request["command"] = "arm_away"
	case actionArmNight:
		request["command"] = "arm_night"
	case actionTrigger:
		request["command"] = "panic"
		request["panic_type"] = e.panicType
	default:
		log.Error().Str("action", cmd.Action).Msg("Unsupported alarm action.")
		return fmt.Errorf("%w: alarm action %s", core.ErrUnsupported, cmd.Action)
	}
	if cmd.Action != actionTrigger {
		if code == "" {
			return errCodeRequired
		}
		request["code"] = code
	}
	log.Info().Int("partition", e.partition).Str("action", cmd.Action).Msg("Sending alarm command.")
	return e.transport.Send(ctx, namespace, e.device, request)
}

// parseAlarmCommand accepts the JSON command template payload as well as a
// bare action name.
func parseAlarmCommand(payload string) (alarmCommand, error) {
	payload = strings.TrimSpace(payload)
	cmd := alarmCommand{}
	if strings.HasPrefix(payload, "{") {
		if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
			return cmd, fmt.Errorf("error decoding alarm command: %w", err)
		}
	} else {
		cmd.Action = payload
	}
	cmd.Action = strings.ToUpper(cmd.Action)
	if cmd.Code == "None" {
		cmd.Code = ""
	}
	return cmd, nil
}

// KeypadEntity exposes the keypad display text of a partition.
type KeypadEntity struct {
	core.CoordinatorEntity[PanelStatus]
	partition int
}

func newKeypadEntity(coordinator *core.Coordinator[PanelStatus], entryId string, device homeassistant.Device, partition int, config Config) *KeypadEntity {
	return &KeypadEntity{
		CoordinatorEntity: core.NewCoordinatorEntity(coordinator, core.EntityDescription{
			UniqueId: fmt.Sprintf("%s_keypad_%d", entryId, partition),
			Name:     fmt.Sprintf("%s Keypad %d", config.AlarmName, partition),
			Domain:   homeassistant.Sensor,
			Device:   device,
		}),
		partition: partition,
	}
}

func (e *KeypadEntity) State() core.EntityState {
	status := e.Coordinator.Data().Partitions[e.partition]
	return core.EntityState{
		State: status.Alpha,
		Attributes: map[string]interface{}{
			"partition": strconv.Itoa(e.partition),
			"ready":     status.Ready,
			"fire":      status.Fire,
		},
	}
}

func (e *KeypadEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	config := &homeassistant.SensorConfig{
		BaseConfig: e.BaseConfig(),
		StateTopic: topics.State,
	}
	config.Icon = "mdi:alarm"
	return config
}
