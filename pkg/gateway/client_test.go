package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/mqtt/mqtttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	signals []string
}

func (n *recordingNotifier) Send(signal string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, signal)
}

func TestSubscribeDecodesAndForwards(t *testing.T) {
	mqttClient := mqtttest.NewClient("integrations")
	notifier := &recordingNotifier{}
	client := NewClient(mqttClient, "gateway", notifier)

	var received map[string]interface{}
	require.NoError(t, client.Subscribe("envisalink", "panel", func(payload map[string]interface{}) {
		received = payload
	}))

	assert.True(t, mqttClient.Inject("gateway/envisalink/panel/state", `{"zones":{"1":{"open":true}}}`))
	require.NotNil(t, received)
	assert.Contains(t, received, "zones")
	assert.Equal(t, []string{"gateway/envisalink/panel"}, notifier.signals)

	// Invalid JSON never reaches the handler.
	received = nil
	mqttClient.Inject("gateway/envisalink/panel/state", `not json`)
	assert.Nil(t, received)

	require.NoError(t, client.Unsubscribe("envisalink", "panel"))
	assert.False(t, mqttClient.Subscribed("gateway/envisalink/panel/state"))
}

func TestSend(t *testing.T) {
	mqttClient := mqtttest.NewClient("integrations")
	client := NewClient(mqttClient, "gateway", nil)

	require.NoError(t, client.Send(context.Background(), "cec", "tv", map[string]interface{}{"command": "standby"}))
	published, ok := mqttClient.Last("gateway/cec/tv/set")
	require.True(t, ok)
	assert.JSONEq(t, `{"command":"standby"}`, published.Payload)
}

// replyTo waits for the request on the set topic and answers it.
func replyTo(t *testing.T, mqttClient *mqtttest.Client, topic string, reply map[string]interface{}) {
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if published, ok := mqttClient.Last(topic + "/set"); ok {
				request := map[string]interface{}{}
				if err := json.Unmarshal([]byte(published.Payload), &request); err != nil {
					return
				}
				reply["id"] = request["id"]
				payload, _ := json.Marshal(reply)
				mqttClient.Inject(topic+"/reply", string(payload))
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
}

func TestRequest(t *testing.T) {
	mqttClient := mqtttest.NewClient("integrations")
	client := NewClient(mqttClient, "gateway", nil)

	replyTo(t, mqttClient, "gateway/envisalink/panel", map[string]interface{}{"status": "ok"})
	reply, err := client.Request(context.Background(), "envisalink", "panel", map[string]interface{}{"command": "status"})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply["status"])
}

func TestRequestErrorReply(t *testing.T) {
	mqttClient := mqtttest.NewClient("integrations")
	client := NewClient(mqttClient, "gateway", nil)

	replyTo(t, mqttClient, "gateway/envisalink/panel", map[string]interface{}{"error": "invalid_auth"})
	_, err := client.Request(context.Background(), "envisalink", "panel", map[string]interface{}{"command": "status"})
	var replyErr *ReplyError
	require.True(t, errors.As(err, &replyErr))
	assert.Equal(t, "invalid_auth", replyErr.Code)
}

func TestRequestTimeout(t *testing.T) {
	mqttClient := mqtttest.NewClient("integrations")
	client := NewClient(mqttClient, "gateway", nil).SetTimeout(10 * time.Millisecond)

	_, err := client.Request(context.Background(), "cec", "tv", map[string]interface{}{"command": "status"})
	assert.Error(t, err)
}

func TestConcurrentRequestsWaitForReplySubscription(t *testing.T) {
	mqttClient := mqtttest.NewClient("integrations")
	client := NewClient(mqttClient, "gateway", nil).SetTimeout(2 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	mqttClient.SubscribeHook = func(string) {
		once.Do(func() {
			close(started)
			<-release
		})
	}

	errs := make(chan error, 2)
	request := func() {
		_, err := client.Request(context.Background(), "tuya", "plug", map[string]interface{}{"command": "status"})
		errs <- err
	}
	go request()
	<-started
	go request()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, requestIds(mqttClient, "gateway/tuya/plug/set"))

	close(release)
	deadline := time.Now().Add(time.Second)
	ids := []string{}
	for len(ids) < 2 && time.Now().Before(deadline) {
		ids = requestIds(mqttClient, "gateway/tuya/plug/set")
		time.Sleep(5 * time.Millisecond)
	}
	require.Len(t, ids, 2)
	for _, id := range ids {
		require.True(t, mqttClient.Inject("gateway/tuya/plug/reply", `{"id":"`+id+`","status":"ok"}`))
	}
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
}

func requestIds(mqttClient *mqtttest.Client, topic string) []string {
	ids := []string{}
	for _, published := range mqttClient.Published() {
		if published.Topic != topic {
			continue
		}
		request := map[string]interface{}{}
		if err := json.Unmarshal([]byte(published.Payload), &request); err == nil {
			if id, ok := request["id"].(string); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
