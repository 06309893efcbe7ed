package embeddedmqtt

import (
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.uber.org/zap"

	"github.com/mikey-austin/botify/pkg/bp"
)

func TestNewServerRequiresAuthConfig(t *testing.T) {
	if _, err := newServer(zap.NewNop(), Config{}); err == nil {
		t.Fatalf("expected error without allow_anonymous or username")
	}
	if _, err := newServer(zap.NewNop(), Config{AllowAnonymous: true}); err != nil {
		t.Fatalf("anonymous server: %v", err)
	}
	if _, err := newServer(zap.NewNop(), Config{Username: "botify", Password: "s3cret"}); err != nil {
		t.Fatalf("authenticated server: %v", err)
	}
}

func TestPlayerStateFlowsThroughBroker(t *testing.T) {
	server, err := newServer(zap.NewNop(), Config{AllowAnonymous: true})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	stateTopic := bp.TopicState(bp.BaseTopic, "livingroom")
	received := make(chan packets.Packet, 1)
	handler := func(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
		received <- pk
	}
	if err := server.Subscribe(stateTopic, 1, handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	state := bp.PlayerState{Playing: true, PositionMS: 4000, Volume: 80, TS: time.Now().Unix()}
	payload, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := server.Publish(stateTopic, payload, true, 0); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case pk := <-received:
		var got bp.PlayerState
		if err := json.Unmarshal(pk.Payload, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !got.Playing || got.PositionMS != 4000 || got.Volume != 80 {
			t.Fatalf("unexpected state: %+v", got)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for state")
	}
}

func TestCommandTopicReachesSubscriber(t *testing.T) {
	server, err := newServer(zap.NewNop(), Config{AllowAnonymous: true})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	cmdTopic := bp.TopicCommands(bp.BaseTopic, "livingroom")
	received := make(chan packets.Packet, 1)
	handler := func(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
		received <- pk
	}
	if err := server.Subscribe(cmdTopic, 1, handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cmd, err := bp.NewCommand("transport.toggle", struct{}{})
	if err != nil {
		t.Fatalf("build command: %v", err)
	}
	cmd.ID = "cmd-1"
	payload, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := server.Publish(cmdTopic, payload, false, 1); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case pk := <-received:
		var got bp.CommandEnvelope
		if err := json.Unmarshal(pk.Payload, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "transport.toggle" || got.ID != "cmd-1" {
			t.Fatalf("unexpected command: %+v", got)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for command")
	}
}

func TestControlLedgerScopesToTopicBase(t *testing.T) {
	ledger := controlLedger(Config{Username: "botify", Password: "s3cret"})

	if len(ledger.Auth) != 1 || string(ledger.Auth[0].Username) != "botify" {
		t.Fatalf("unexpected auth rules: %+v", ledger.Auth)
	}
	if len(ledger.ACL) != 1 {
		t.Fatalf("expected a single acl rule, got %d", len(ledger.ACL))
	}
	filters := ledger.ACL[0].Filters
	access, ok := filters[auth.RString(bp.BaseTopic+"/#")]
	if !ok || access != auth.ReadWrite {
		t.Fatalf("control tree not granted: %+v", filters)
	}
	if _, open := filters[auth.RString("#")]; open {
		t.Fatalf("ledger must not grant the whole topic space")
	}

	scoped := controlLedger(Config{Username: "botify", TopicBase: "home/audio"})
	if _, ok := scoped.ACL[0].Filters[auth.RString("home/audio/#")]; !ok {
		t.Fatalf("custom topic base not honored: %+v", scoped.ACL[0].Filters)
	}
}

func TestBrokerURL(t *testing.T) {
	if got := BrokerURL(DefaultListen, false); got != "mqtt://127.0.0.1:1883" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := BrokerURL("127.0.0.1:8883", true); got != "mqtts://127.0.0.1:8883" {
		t.Fatalf("unexpected url %q", got)
	}
}
