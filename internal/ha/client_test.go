package ha

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// mockHAServer creates a mock Home Assistant WebSocket server
func mockHAServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		handler(conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// standardAuthFlow handles the standard authentication flow
func standardAuthFlow(t *testing.T, conn *websocket.Conn, token string) {
	err := conn.WriteJSON(Message{Type: "auth_required"})
	require.NoError(t, err)

	var authMsg AuthMessage
	err = conn.ReadJSON(&authMsg)
	require.NoError(t, err)
	assert.Equal(t, "auth", authMsg.Type)
	assert.Equal(t, token, authMsg.AccessToken)

	err = conn.WriteJSON(Message{Type: "auth_ok"})
	require.NoError(t, err)
}

func TestClient_Connect(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	t.Run("successful connection", func(t *testing.T) {
		done := make(chan struct{})
		server := mockHAServer(t, func(conn *websocket.Conn) {
			standardAuthFlow(t, conn, token)
			<-done
		})
		defer server.Close()
		defer close(done)

		client := NewClient(wsURL(server), token, logger)
		err := client.Connect()
		require.NoError(t, err)
		defer client.Disconnect()

		assert.True(t, client.IsConnected())
	})

	t.Run("invalid token", func(t *testing.T) {
		server := mockHAServer(t, func(conn *websocket.Conn) {
			err := conn.WriteJSON(Message{Type: "auth_required"})
			require.NoError(t, err)

			var authMsg AuthMessage
			err = conn.ReadJSON(&authMsg)
			require.NoError(t, err)

			err = conn.WriteJSON(Message{Type: "auth_invalid"})
			require.NoError(t, err)
		})
		defer server.Close()

		client := NewClient(wsURL(server), "wrong_token", logger)
		err := client.Connect()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid token")
		assert.False(t, client.IsConnected())
	})

	t.Run("connection refused", func(t *testing.T) {
		client := NewClient("ws://127.0.0.1:1/api/websocket", token, logger)
		err := client.Connect()
		assert.Error(t, err)
	})
}

func TestClient_CallService(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	t.Run("successful call", func(t *testing.T) {
		server := mockHAServer(t, func(conn *websocket.Conn) {
			standardAuthFlow(t, conn, token)

			var req CallServiceRequest
			err := conn.ReadJSON(&req)
			require.NoError(t, err)
			assert.Equal(t, "call_service", req.Type)
			assert.Equal(t, "light", req.Domain)
			assert.Equal(t, "turn_on", req.Service)
			assert.Equal(t, "light.bedroom", req.ServiceData["entity_id"])

			success := true
			err = conn.WriteJSON(Message{ID: req.ID, Type: "result", Success: &success})
			require.NoError(t, err)
		})
		defer server.Close()

		client := NewClient(wsURL(server), token, logger)
		require.NoError(t, client.Connect())
		defer client.Disconnect()

		err := client.CallService("light", "turn_on", map[string]interface{}{
			"entity_id":  "light.bedroom",
			"brightness": 128,
		})
		assert.NoError(t, err)
	})

	t.Run("service error", func(t *testing.T) {
		server := mockHAServer(t, func(conn *websocket.Conn) {
			standardAuthFlow(t, conn, token)

			var req CallServiceRequest
			err := conn.ReadJSON(&req)
			require.NoError(t, err)

			success := false
			err = conn.WriteJSON(Message{
				ID:      req.ID,
				Type:    "result",
				Success: &success,
				Error:   &Error{Code: "not_found", Message: "Service not found"},
			})
			require.NoError(t, err)
		})
		defer server.Close()

		client := NewClient(wsURL(server), token, logger)
		require.NoError(t, client.Connect())
		defer client.Disconnect()

		err := client.CallService("light", "does_not_exist", nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not_found")
	})

	t.Run("not connected", func(t *testing.T) {
		client := NewClient("ws://127.0.0.1:1", token, logger)
		err := client.CallService("light", "turn_on", nil)
		assert.Error(t, err)
	})
}

func TestClient_GetState(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	serveStates := func(conn *websocket.Conn, states []*State) {
		standardAuthFlow(t, conn, token)

		for {
			var req GetStatesRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			result, err := json.Marshal(states)
			require.NoError(t, err)

			success := true
			err = conn.WriteJSON(Message{
				ID:      req.ID,
				Type:    "result",
				Success: &success,
				Result:  result,
			})
			require.NoError(t, err)
		}
	}

	states := []*State{
		{EntityID: "person.nick", State: "home"},
		{EntityID: "light.bedroom", State: "off"},
	}

	server := mockHAServer(t, func(conn *websocket.Conn) {
		serveStates(conn, states)
	})
	defer server.Close()

	client := NewClient(wsURL(server), token, logger)
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	t.Run("known entity", func(t *testing.T) {
		state, err := client.GetState("person.nick")
		require.NoError(t, err)
		assert.Equal(t, "home", state.State)
	})

	t.Run("unknown entity", func(t *testing.T) {
		_, err := client.GetState("person.ghost")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("all states", func(t *testing.T) {
		all, err := client.GetAllStates()
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestClient_SetInputHelpers(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	token := "test_token"

	type recorded struct {
		domain  string
		service string
		data    map[string]interface{}
	}
	calls := make(chan recorded, 3)

	server := mockHAServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, token)

		for {
			var req CallServiceRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			calls <- recorded{domain: req.Domain, service: req.Service, data: req.ServiceData}

			success := true
			if err := conn.WriteJSON(Message{ID: req.ID, Type: "result", Success: &success}); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(wsURL(server), token, logger)
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	require.NoError(t, client.SetInputBoolean("wakeup_alarm_enabled", true))
	call := <-calls
	assert.Equal(t, "input_boolean", call.domain)
	assert.Equal(t, "turn_on", call.service)
	assert.Equal(t, "input_boolean.wakeup_alarm_enabled", call.data["entity_id"])

	require.NoError(t, client.SetInputBoolean("wakeup_alarm_enabled", false))
	call = <-calls
	assert.Equal(t, "turn_off", call.service)

	require.NoError(t, client.SetInputText("wakeup_alarm_status", "armed"))
	call = <-calls
	assert.Equal(t, "input_text", call.domain)
	assert.Equal(t, "set_value", call.service)
	assert.Equal(t, "input_text.wakeup_alarm_status", call.data["entity_id"])
	assert.Equal(t, "armed", call.data["value"])
}
