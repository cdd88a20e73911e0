package envisalink

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

var now = time.Now

type PartitionStatus struct {
	Alarm               bool   `mapstructure:"alarm"`
	AlarmInMemory       bool   `mapstructure:"alarm_in_memory"`
	ArmedAway           bool   `mapstructure:"armed_away"`
	ArmedStay           bool   `mapstructure:"armed_stay"`
	ArmedZeroEntryDelay bool   `mapstructure:"armed_zero_entry_delay"`
	ArmedBypass         bool   `mapstructure:"armed_bypass"`
	ExitDelay           bool   `mapstructure:"exit_delay"`
	EntryDelay          bool   `mapstructure:"entry_delay"`
	Ready               bool   `mapstructure:"ready"`
	Trouble             bool   `mapstructure:"trouble"`
	AcPresent           bool   `mapstructure:"ac_present"`
	Chime               bool   `mapstructure:"chime"`
	Fire                bool   `mapstructure:"fire"`
	Alpha               string `mapstructure:"alpha"`
}

type ZoneStatus struct {
	Open     bool `mapstructure:"open"`
	Fault    bool `mapstructure:"fault"`
	Alarm    bool `mapstructure:"alarm"`
	Tamper   bool `mapstructure:"tamper"`
	Bypassed bool `mapstructure:"bypassed"`
	// Seconds since the zone last faulted.
	LastFault float64 `mapstructure:"last_fault"`
}

// PanelStatus is the full panel state pushed by the gateway.
type PanelStatus struct {
	Connected  bool                    `mapstructure:"connected"`
	Partitions map[int]PartitionStatus `mapstructure:"partitions"`
	Zones      map[int]ZoneStatus      `mapstructure:"zones"`
	ReceivedAt time.Time               `mapstructure:"-"`
}

func decodeStatus(payload map[string]interface{}) (PanelStatus, error) {
	status := PanelStatus{Connected: true}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &status,
	})
	if err != nil {
		return status, err
	}
	if err := decoder.Decode(payload); err != nil {
		return status, fmt.Errorf("error decoding envisalink status: %w", err)
	}
	status.ReceivedAt = now()
	return status, nil
}

// State returns the alarm control panel state of a partition, or "" when
// the panel has not reported enough to tell.
func (p PartitionStatus) State() string {
	switch {
	case p.Alarm:
		return StateTriggered
	case p.ArmedZeroEntryDelay:
		return StateArmedNight
	case p.ArmedAway:
		return StateArmedAway
	case p.ArmedStay:
		return StateArmedHome
	case p.ExitDelay:
		return StateArming
	case p.EntryDelay:
		return StatePending
	case p.Alpha != "":
		return StateDisarmed
	}
	return ""
}
