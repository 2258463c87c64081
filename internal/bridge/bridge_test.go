package bridge

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"HumaGCS/internal/drone"
	gcserrors "HumaGCS/internal/errors"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return qos }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 1 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type fakeClient struct {
	mu        sync.Mutex
	published []message
	handlers  map[string]mqtt.MessageHandler
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]mqtt.MessageHandler{}}
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, message{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = cb
	return doneToken{}
}

func (c *fakeClient) deliver(topic, payload string) {
	c.mu.Lock()
	cb := c.handlers[topic]
	c.mu.Unlock()
	cb(nil, message{topic: topic, payload: []byte(payload)})
}

func (c *fakeClient) on(topic string) []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []message
	for _, m := range c.published {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type call struct {
	name string
	args []interface{}
}

type fakeController struct {
	mu    sync.Mutex
	t     drone.Telemetry
	calls []call
}

func (f *fakeController) record(name string, args ...interface{}) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name, args})
	f.mu.Unlock()
}

func (f *fakeController) Telemetry() drone.Telemetry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeController) ArmDisarm(arm bool) error {
	f.record("arm", arm)
	return nil
}

func (f *fakeController) SetMode(name string) error {
	f.record("mode", name)
	if name == "BOGUS" {
		return gcserrors.ErrUnknownMode
	}
	return nil
}

func (f *fakeController) ReturnToLaunch() error {
	f.record("rtl")
	return nil
}

func (f *fakeController) AutonomousTakeoff(_ context.Context, alt float32) drone.SequenceResult {
	f.record("takeoff", alt)
	return drone.SequenceResult{Sequence: drone.SequenceTakeoff, Success: true, Stage: drone.StageDone}
}

func (f *fakeController) AutonomousLand(_ context.Context, lon, lat float64, currentAlt, cruiseAlt float32) drone.SequenceResult {
	f.record("land", lon, lat, currentAlt, cruiseAlt)
	return drone.SequenceResult{Sequence: drone.SequenceLand, Success: true, Stage: drone.StageDone}
}

func (f *fakeController) lastCall() (call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}, false
	}
	return f.calls[len(f.calls)-1], true
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleControlCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    call
	}{
		{`{"command":"arm"}`, call{"arm", []interface{}{true}}},
		{`{"command":"disarm"}`, call{"arm", []interface{}{false}}},
		{`{"command":"mode","payload":"LOITER"}`, call{"mode", []interface{}{"LOITER"}}},
		{`{"command":"rtl"}`, call{"rtl", nil}},
		{`{"command":"takeoff"}`, call{"takeoff", []interface{}{float32(40)}}},
		{`{"command":"takeoff","payload":"25"}`, call{"takeoff", []interface{}{float32(25)}}},
		{`{"command":"land","payload":"47.5, 8.25"}`, call{"land", []interface{}{8.25, 47.5, float32(12), float32(20)}}},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			ctrl := &fakeController{t: drone.Telemetry{RelativeAltitude: 12}}
			b := New(newFakeClient(), "uav-1", ctrl, WithLogger(quiet()), WithAltitudes(40, 20))

			if err := b.handleControlCommand(context.Background(), []byte(tt.payload)); err != nil {
				t.Fatalf("handleControlCommand() error = %v", err)
			}
			got, ok := ctrl.lastCall()
			if !ok {
				t.Fatalf("controller not called")
			}
			if got.name != tt.want.name || len(got.args) != len(tt.want.args) {
				t.Fatalf("call = %+v, want %+v", got, tt.want)
			}
			for i := range got.args {
				if got.args[i] != tt.want.args[i] {
					t.Errorf("arg %d = %v, want %v", i, got.args[i], tt.want.args[i])
				}
			}
		})
	}
}

func TestHandleControlCommandErrors(t *testing.T) {
	tests := []string{
		`not json`,
		`{"command":"selfdestruct"}`,
		`{"command":"mode"}`,
		`{"command":"takeoff","payload":"high"}`,
		`{"command":"land","payload":"47.5"}`,
		`{"command":"land","payload":"95,8"}`,
	}

	for _, payload := range tests {
		ctrl := &fakeController{}
		b := New(newFakeClient(), "uav-1", ctrl, WithLogger(quiet()))
		if err := b.handleControlCommand(context.Background(), []byte(payload)); err == nil {
			t.Errorf("handleControlCommand(%s) succeeded", payload)
		}
	}

	ctrl := &fakeController{}
	b := New(newFakeClient(), "uav-1", ctrl, WithLogger(quiet()))
	err := b.handleControlCommand(context.Background(), []byte(`{"command":"mode","payload":"BOGUS"}`))
	if !errors.Is(err, gcserrors.ErrUnknownMode) {
		t.Errorf("error = %v, want ErrUnknownMode", err)
	}
}

func TestStartPublishesChangedTelemetry(t *testing.T) {
	client := newFakeClient()
	ctrl := &fakeController{t: drone.Telemetry{Updated: 7, Lat: 47.1, FlightMode: "GUIDED"}}
	b := New(client, "uav-1", ctrl, WithLogger(quiet()))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if err := b.Start(ctx, &wg, 5*time.Millisecond); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	client.deliver("/devices/uav-1/commands/control", `{"command":"rtl"}`)
	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	msgs := client.on("/devices/uav-1/events/telemetry")
	if len(msgs) != 1 {
		t.Fatalf("published %d telemetry messages, want 1 for an unchanged snapshot", len(msgs))
	}
	var got map[string]interface{}
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatal(err)
	}
	if got["lat"] != 47.1 || got["flight_mode"] != "GUIDED" || got["device_id"] != "uav-1" || got["message_id"] == "" {
		t.Errorf("telemetry = %v", got)
	}

	if c, ok := ctrl.lastCall(); !ok || c.name != "rtl" {
		t.Errorf("rtl command not executed, last call %+v", c)
	}
}

func TestPublishSequence(t *testing.T) {
	client := newFakeClient()
	b := New(client, "uav-1", &fakeController{}, WithLogger(quiet()))

	b.PublishSequence(drone.SequenceResult{
		Sequence: drone.SequenceTakeoff,
		Stage:    drone.StageArm,
		Err:      &gcserrors.SequenceError{Sequence: "takeoff", Stage: "arm", Err: gcserrors.ErrArmTimeout},
	})

	msgs := client.on("/devices/uav-1/events/sequence")
	if len(msgs) != 1 {
		t.Fatalf("published %d sequence messages, want 1", len(msgs))
	}
	var got sequenceMessage
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Success || got.Stage != "arm" || got.Error == "" || got.Sequence != "takeoff" {
		t.Errorf("sequence = %+v", got)
	}
}

func TestPassword(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "ec_private.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	pass, err := password(path, "ES256", "fleet", now)
	if err != nil {
		t.Fatalf("password() error = %v", err)
	}

	claims := &jwt.StandardClaims{}
	_, err = jwt.ParseWithClaims(pass, claims, func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	})
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.Audience != "fleet" || claims.IssuedAt != now.Unix() {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := password(path, "HS256", "fleet", now); err == nil {
		t.Errorf("password() accepted HS256")
	}
	if _, err := password(filepath.Join(t.TempDir(), "missing.pem"), "ES256", "fleet", now); err == nil {
		t.Errorf("password() accepted a missing key")
	}
}

func TestParseLatLon(t *testing.T) {
	lat, lon, err := ParseLatLon("-33.86, 151.2")
	if err != nil || lat != -33.86 || lon != 151.2 {
		t.Errorf("ParseLatLon() = %v, %v, %v", lat, lon, err)
	}
}
