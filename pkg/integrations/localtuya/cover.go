package localtuya

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

const (
	commandSet      = "set"
	commandPosition = "position"

	payloadOpen  = "OPEN"
	payloadClose = "CLOSE"
	payloadStop  = "STOP"

	coverOpen    = "open"
	coverClosed  = "closed"
	coverOpening = "opening"
	coverClosing = "closing"
	coverStopped = "stopped"
)

type timer interface {
	Stop() bool
}

var (
	now       = time.Now
	afterFunc = func(d time.Duration, f func()) timer {
		return time.AfterFunc(d, f)
	}
)

// timedMove is a movement of a cover without position feedback.
type timedMove struct {
	from      int
	target    int
	startedAt time.Time
	timer     timer
}

// CoverEntity drives a curtain or shutter motor.
type CoverEntity struct {
	core.CoordinatorEntity[DeviceState]
	device *device
	config EntityConfig

	openCmd, closeCmd, stopCmd string

	mu       sync.Mutex
	position int
	move     *timedMove
}

func newCoverEntity(d *device, description core.EntityDescription, config EntityConfig) *CoverEntity {
	if config.SpanTime <= 0 {
		config.SpanTime = defaultSpanTime.Seconds()
	}
	if config.PositioningMode == "" {
		config.PositioningMode = ModeNone
	}
	e := &CoverEntity{
		CoordinatorEntity: core.NewCoordinatorEntity(d.coordinator, description),
		device:            d,
		config:            config,
	}
	e.openCmd, e.closeCmd, e.stopCmd = coverCommands(config.CommandsSet)
	return e
}

// commands returns the command values in the case used by the device.
func (e *CoverEntity) commands() (string, string, string) {
	if value, ok := e.device.dp(e.config.Id); ok {
		if s := cast.ToString(value); s != "" && s == strings.ToUpper(s) && s != strings.ToLower(s) {
			return strings.ToUpper(e.openCmd), strings.ToUpper(e.closeCmd), strings.ToUpper(e.stopCmd)
		}
	}
	return e.openCmd, e.closeCmd, e.stopCmd
}

// CurrentPosition is the position in percent, 100 being fully open.
func (e *CoverEntity) CurrentPosition() (int, bool) {
	switch e.config.PositioningMode {
	case ModePosition:
		value, ok := e.device.dp(e.config.CurrentPositionDp)
		if !ok {
			return 0, false
		}
		position := cast.ToInt(value)
		if e.config.PositionInverted {
			position = 100 - position
		}
		return position, true
	case ModeTimed:
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.move != nil {
			return e.movingPosition(), true
		}
		return e.position, true
	}
	return 0, false
}

// movingPosition estimates the position from the elapsed time. Callers hold mu.
func (e *CoverEntity) movingPosition() int {
	elapsed := now().Sub(e.move.startedAt).Seconds()
	delta := int(math.Round(elapsed / e.config.SpanTime * 100))
	if e.move.target < e.move.from {
		delta = -delta
	}
	position := e.move.from + delta
	return min(100, max(0, position))
}

func (e *CoverEntity) State() core.EntityState {
	attributes := map[string]interface{}{}
	state := ""
	if e.config.PositioningMode == ModeTimed {
		e.mu.Lock()
		if e.move != nil {
			state = coverOpening
			if e.move.target < e.move.from {
				state = coverClosing
			}
		}
		e.mu.Unlock()
	}
	position, hasPosition := e.CurrentPosition()
	if hasPosition {
		attributes["current_position"] = position
	}
	if state == "" {
		if hasPosition {
			state = coverOpen
			if position == 0 {
				state = coverClosed
			}
		} else if value, ok := e.device.dp(e.config.Id); ok {
			switch command := cast.ToString(value); {
			case strings.EqualFold(command, e.openCmd):
				state = coverOpen
			case strings.EqualFold(command, e.closeCmd):
				state = coverClosed
			case strings.EqualFold(command, e.stopCmd):
				state = coverStopped
			}
		}
	}
	return core.EntityState{State: state, Attributes: attributes}
}

func (e *CoverEntity) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	config := &homeassistant.CoverConfig{
		BaseConfig:   e.BaseConfig(),
		StateTopic:   topics.State,
		StateOpen:    coverOpen,
		StateClosed:  coverClosed,
		StateOpening: coverOpening,
		StateClosing: coverClosing,
		StateStopped: coverStopped,
		CommandTopic: topics.Command(commandSet),
		PayloadOpen:  payloadOpen,
		PayloadClose: payloadClose,
		PayloadStop:  payloadStop,
	}
	if e.config.PositioningMode != ModeNone {
		config.PositionTopic = topics.Attributes
		config.PositionTemplate = "{{ value_json.current_position }}"
		config.SetPositionTopic = topics.Command(commandPosition)
	}
	return config
}

func (e *CoverEntity) Commands() []string {
	if e.config.PositioningMode == ModeNone {
		return []string{commandSet}
	}
	return []string{commandSet, commandPosition}
}

func (e *CoverEntity) HandleCommand(ctx context.Context, command string, payload string) error {
	payload = strings.TrimSpace(payload)
	switch command {
	case commandSet:
		switch strings.ToUpper(payload) {
		case payloadOpen:
			return e.Open(ctx)
		case payloadClose:
			return e.Close(ctx)
		case payloadStop:
			return e.Stop(ctx)
		}
		return fmt.Errorf("%w: cover payload %s", core.ErrUnsupported, payload)
	case commandPosition:
		position, err := cast.ToIntE(payload)
		if err != nil || position < 0 || position > 100 {
			return fmt.Errorf("invalid cover position '%s'", payload)
		}
		return e.SetPosition(ctx, position)
	}
	return fmt.Errorf("%w: command %s", core.ErrUnsupported, command)
}

func (e *CoverEntity) Open(ctx context.Context) error {
	if e.config.PositioningMode == ModeTimed {
		return e.SetPosition(ctx, 100)
	}
	open, _, _ := e.commands()
	return e.device.setDp(ctx, e.config.Id, open)
}

func (e *CoverEntity) Close(ctx context.Context) error {
	if e.config.PositioningMode == ModeTimed {
		return e.SetPosition(ctx, 0)
	}
	_, closeCmd, _ := e.commands()
	return e.device.setDp(ctx, e.config.Id, closeCmd)
}

func (e *CoverEntity) Stop(ctx context.Context) error {
	_, _, stop := e.commands()
	if e.config.PositioningMode == ModeTimed {
		e.mu.Lock()
		if e.move != nil {
			e.move.timer.Stop()
			e.position = e.movingPosition()
			e.move = nil
		}
		e.mu.Unlock()
	}
	return e.device.setDp(ctx, e.config.Id, stop)
}

func (e *CoverEntity) SetPosition(ctx context.Context, position int) error {
	switch e.config.PositioningMode {
	case ModePosition:
		if e.config.PositionInverted {
			position = 100 - position
		}
		dp := e.config.SetPositionDp
		if dp == "" {
			dp = e.config.CurrentPositionDp
		}
		return e.device.setDp(ctx, dp, position)
	case ModeTimed:
		return e.moveTimed(ctx, position)
	}
	return fmt.Errorf("%w: cover %s has no positioning", core.ErrUnsupported, e.Name())
}

// moveTimed starts the motor and schedules the stop once the cover has
// travelled the requested distance.
func (e *CoverEntity) moveTimed(ctx context.Context, target int) error {
	e.mu.Lock()
	current := e.position
	if e.move != nil {
		e.move.timer.Stop()
		current = e.movingPosition()
		e.move = nil
	}
	e.position = current
	e.mu.Unlock()

	diff := target - current
	if diff == 0 {
		return nil
	}
	open, closeCmd, _ := e.commands()
	command := open
	if diff < 0 {
		command = closeCmd
	}
	if err := e.device.setDp(ctx, e.config.Id, command); err != nil {
		return err
	}

	delay := time.Duration(e.config.SpanTime * math.Abs(float64(diff)) / 100 * float64(time.Second))
	move := &timedMove{from: current, target: target, startedAt: now()}
	e.mu.Lock()
	e.move = move
	move.timer = afterFunc(delay, func() { e.finishMove(move) })
	e.mu.Unlock()
	log.Debug().Str("cover", e.UniqueId()).Int("from", current).Int("to", target).Dur("delay", delay).Msg("Timed cover move started.")
	e.WriteState()
	return nil
}

func (e *CoverEntity) finishMove(move *timedMove) {
	e.mu.Lock()
	if e.move != move {
		e.mu.Unlock()
		return
	}
	e.move = nil
	e.position = move.target
	e.mu.Unlock()

	_, _, stop := e.commands()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.device.setDp(ctx, e.config.Id, stop); err != nil {
		log.Error().Err(err).Str("cover", e.UniqueId()).Msg("Unable to stop the cover.")
	}
	e.WriteState()
}
