package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"iotview/internal/auth"
	"iotview/internal/config"
	"iotview/internal/device"
	"iotview/internal/dispatch"
	"iotview/internal/history"
	"iotview/internal/mqtt"
)

// fakeBroker satisfies both the registry's Subscriber and the
// dispatcher's Publisher
type fakeBroker struct {
	mu        sync.Mutex
	published []string // "topic payload"
}

func (f *fakeBroker) Subscribe(topic string)   {}
func (f *fakeBroker) Unsubscribe(topic string) {}

func (f *fakeBroker) Publish(topic, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, topic+" "+payload)
	return nil
}

func (f *fakeBroker) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

type testEnv struct {
	server *Server
	router *mqtt.Router
	store  *device.Store
	broker *fakeBroker
	cfg    *config.Config
}

func newTestEnv(t *testing.T, noAuth bool) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("Failed to load test config: %v", err)
	}

	repo, err := device.NewBoltRepository(filepath.Join(dir, "registry.db"))
	if err != nil {
		t.Fatalf("Failed to open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	store := device.NewStore()
	broker := &fakeBroker{}

	registry := device.NewService(repo, store, broker, nil)
	if err := registry.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	hist := history.NewRing(50)
	dispatcher := dispatch.New(store, broker, hist, nil)

	server := NewServer(Options{
		Store:      store,
		Registry:   registry,
		Dispatcher: dispatcher,
		History:    hist,
		Accounts:   auth.NewAccounts("admin-secret", "viewer-secret"),
		Config:     cfg,
		JWTSecret:  "test-secret-key-for-api-tests",
		JWTExpiry:  time.Hour,
		NoAuth:     noAuth,
	})

	return &testEnv{
		server: server,
		router: mqtt.NewRouter(store, nil),
		store:  store,
		broker: broker,
		cfg:    cfg,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}

// TestLoginFlow covers the full cookie session lifecycle
func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t, false)

	// Unauthenticated reads are rejected
	rec := env.do(t, http.MethodGet, "/api/device-data", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without session, got %d", rec.Code)
	}

	// Wrong password
	rec = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "admin", "password": "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for wrong password, got %d", rec.Code)
	}

	// Correct login sets the session cookie
	rec = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "admin", "password": "admin-secret"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on login, got %d: %s", rec.Code, rec.Body.String())
	}

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	if session == nil || session.Value == "" {
		t.Fatal("Expected a session cookie on login")
	}

	// The cookie grants access
	rec = env.do(t, http.MethodGet, "/api/device-data", nil, session)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with session, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/auth/me", nil, session)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from me endpoint, got %d", rec.Code)
	}
	me := decodeBody(t, rec)
	if me["username"] != "admin" || me["role"] != "admin" {
		t.Errorf("Unexpected identity: %v", me)
	}

	// Garbage cookies are rejected
	rec = env.do(t, http.MethodGet, "/api/device-data", nil,
		&http.Cookie{Name: auth.CookieName, Value: "not-a-token"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a bogus token, got %d", rec.Code)
	}
}

// TestViewerCannotMutate verifies the role split
func TestViewerCannotMutate(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "viewer", "password": "viewer-secret"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Viewer login failed: %d", rec.Code)
	}
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	if session == nil {
		t.Fatal("Expected a session cookie")
	}

	// Reads are allowed
	rec = env.do(t, http.MethodGet, "/api/device-data", nil, session)
	if rec.Code != http.StatusOK {
		t.Errorf("Viewer read should succeed, got %d", rec.Code)
	}

	// Mutations are forbidden
	rec = env.do(t, http.MethodPost, "/api/sensors",
		map[string]string{"name": "Temp", "topic": "iot/t1"}, session)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for viewer mutation, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/actuator/raw_command",
		map[string]string{"actuator_id": "actuator_vent_default", "raw_command": "ON"}, session)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for viewer command, got %d", rec.Code)
	}
}

// TestSensorLifecycle runs register, inbound message, read, delete
// through the HTTP surface
func TestSensorLifecycle(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/sensors",
		map[string]string{"name": "Temp", "topic": "iot/t1", "data_type": "°C"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	id, _ := created["id"].(string)
	if !strings.HasPrefix(id, "sensor_") {
		t.Fatalf("Expected a generated sensor ID, got %q", id)
	}

	// Duplicate topic is rejected
	rec = env.do(t, http.MethodPost, "/api/sensors",
		map[string]string{"name": "Other", "topic": "iot/t1"}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate topic, got %d", rec.Code)
	}

	// Missing fields are rejected
	rec = env.do(t, http.MethodPost, "/api/sensors",
		map[string]string{"name": "", "topic": "iot/t2"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing name, got %d", rec.Code)
	}

	// An inbound reading shows up in the dashboard payload
	env.router.Handle("iot/t1", " 21.4 ")

	rec = env.do(t, http.MethodGet, "/api/device-data", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	data := decodeBody(t, rec)
	sensors, ok := data["sensors"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected a sensors map, got %T", data["sensors"])
	}
	sn, ok := sensors[id].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected sensor %s in payload", id)
	}
	if sn["value"] != 21.4 {
		t.Errorf("Expected value 21.4, got %v", sn["value"])
	}
	if sn["timestamp"] == "-" {
		t.Error("Expected a real timestamp after a reading")
	}

	// Seed devices cannot be deleted
	rec = env.do(t, http.MethodDelete, "/api/sensors/sensor_temp_default", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 deleting a default sensor, got %d", rec.Code)
	}

	// User devices can
	rec = env.do(t, http.MethodDelete, "/api/sensors/"+id, nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 deleting the sensor, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/api/sensors/"+id, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on double delete, got %d", rec.Code)
	}
}

// TestActuatorEdit verifies update and conflict handling over HTTP
func TestActuatorEdit(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/actuators",
		map[string]string{"name": "Pump", "command_topic": "iot/pump/cmd", "status_topic": "iot/pump/status"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	id, _ := decodeBody(t, rec)["id"].(string)

	// Renaming keeps topics
	rec = env.do(t, http.MethodPut, "/api/actuators/"+id,
		map[string]string{"name": "Water Pump", "command_topic": "iot/pump/cmd", "status_topic": "iot/pump/status"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on edit, got %d: %s", rec.Code, rec.Body.String())
	}

	// Stealing a seed actuator's command topic fails
	rec = env.do(t, http.MethodPut, "/api/actuators/"+id,
		map[string]string{"name": "Water Pump", "command_topic": device.TopicVentilatorCmdDefault}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a taken command topic, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/api/actuators/ghost",
		map[string]string{"name": "X", "command_topic": "iot/x/cmd"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown actuator, got %d", rec.Code)
	}
}

// TestRawCommand verifies the wire-level command endpoint
func TestRawCommand(t *testing.T) {
	env := newTestEnv(t, true)

	// Bad vocabulary
	rec := env.do(t, http.MethodPost, "/api/actuator/raw_command",
		map[string]string{"actuator_id": "actuator_vent_default", "raw_command": "REBOOT"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad command, got %d", rec.Code)
	}

	// Unknown actuator
	rec = env.do(t, http.MethodPost, "/api/actuator/raw_command",
		map[string]string{"actuator_id": "ghost", "raw_command": "ON"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown actuator, got %d", rec.Code)
	}

	// Valid command publishes and reports the new display state
	rec = env.do(t, http.MethodPost, "/api/actuator/raw_command",
		map[string]string{"actuator_id": "actuator_vent_default", "raw_command": "on"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["new_state"] != "Ligado" {
		t.Errorf("Expected new_state Ligado, got %v", body["new_state"])
	}

	published := env.broker.log()
	want := device.TopicVentilatorCmdDefault + " ON"
	if len(published) != 1 || published[0] != want {
		t.Errorf("Expected publish %q, got %v", want, published)
	}

	// The command lands in the history slice of the dashboard payload
	rec = env.do(t, http.MethodGet, "/api/device-data", nil, nil)
	data := decodeBody(t, rec)
	hist, ok := data["command_history"].([]interface{})
	if !ok || len(hist) != 1 {
		t.Fatalf("Expected one history entry, got %v", data["command_history"])
	}
	entry := hist[0].(map[string]interface{})
	if entry["payload"] != "ON" || entry["user"] != "dev" {
		t.Errorf("Unexpected history entry: %v", entry)
	}
}

// TestSemanticCommand verifies the operator vocabulary endpoint
func TestSemanticCommand(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/actuator/command",
		map[string]string{"actuator_id": "actuator_heater_default", "command": "ligar"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["new_state"] != "Ligado" {
		t.Errorf("Expected Ligado, got %v", body["new_state"])
	}

	// Wire vocabulary is not accepted on the semantic endpoint
	rec = env.do(t, http.MethodPost, "/api/actuator/command",
		map[string]string{"actuator_id": "actuator_heater_default", "command": "ON"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for wire command, got %d", rec.Code)
	}
}

// TestToggleEndpoint verifies toggling through HTTP
func TestToggleEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/actuators/actuator_vent_default/toggle", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["new_state"] != "Ligado" {
		t.Errorf("Expected Ligado after first toggle, got %v", body["new_state"])
	}

	rec = env.do(t, http.MethodPost, "/api/actuators/actuator_vent_default/toggle", nil, nil)
	if body := decodeBody(t, rec); body["new_state"] != "Desligado" {
		t.Errorf("Expected Desligado after second toggle, got %v", body["new_state"])
	}

	rec = env.do(t, http.MethodPost, "/api/actuators/ghost/toggle", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown actuator, got %d", rec.Code)
	}
}

// TestUnknownFieldRejected verifies request bodies with stray fields
// are turned away
func TestUnknownFieldRejected(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/sensors",
		map[string]string{"name": "Temp", "topic": "iot/t1", "bogus": "x"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unknown field, got %d", rec.Code)
	}
}

// TestSettings verifies reading and persisting runtime configuration
func TestSettings(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/settings", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	settings := decodeBody(t, rec)
	if settings["mqtt_broker"] != config.DefaultMQTTBroker {
		t.Errorf("Expected default broker, got %v", settings["mqtt_broker"])
	}

	// A broker change persists to the env file
	rec = env.do(t, http.MethodPut, "/api/settings",
		map[string]string{"mqtt_broker": "tcp://mqtt.example.com:1883"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["restart_required"] != true {
		t.Error("Expected restart_required in the response")
	}

	reloaded, err := config.Load(env.cfg.FilePath())
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reloaded.MQTTBroker() != "tcp://mqtt.example.com:1883" {
		t.Errorf("Broker change did not persist, got %s", reloaded.MQTTBroker())
	}

	// An invalid broker is rejected and nothing changes
	rec = env.do(t, http.MethodPut, "/api/settings",
		map[string]string{"mqtt_broker": "no-scheme:1883"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an invalid broker, got %d", rec.Code)
	}
	if env.cfg.MQTTBroker() != "tcp://mqtt.example.com:1883" {
		t.Errorf("Rejected update must not change the config, got %s", env.cfg.MQTTBroker())
	}
}

// TestStatusEchoOverridesCommand verifies a device status echo reflected
// in the dashboard payload wins over the optimistic command state
func TestStatusEchoOverridesCommand(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/actuator/raw_command",
		map[string]string{"actuator_id": "actuator_vent_default", "raw_command": "ON"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	// The device reports it actually stayed off
	env.router.Handle(device.TopicVentilatorStatDefault, "OFF")

	rec = env.do(t, http.MethodGet, "/api/device-data", nil, nil)
	data := decodeBody(t, rec)
	actuators := data["actuators"].(map[string]interface{})
	vent := actuators["actuator_vent_default"].(map[string]interface{})
	if vent["state"] != "OFF" || vent["display_state"] != "Desligado" {
		t.Errorf("Expected device echo to win, got %v", vent)
	}
}
