package ipc

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeArgsFlattensSessionUpdate(t *testing.T) {
	var raw interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"id":"abc","studyDuration":40}`), &raw))

	var args SessionUpdateArgs
	require.NoError(t, DecodeArgs(raw, &args))
	assert.Equal(t, "abc", args.ID)
	require.NotNil(t, args.StudyDuration)
	assert.Equal(t, 40, *args.StudyDuration)
	assert.Nil(t, args.Subject)
}

func TestDecodeArgsNil(t *testing.T) {
	args := TimerStartArgs{Seconds: 5}
	require.NoError(t, DecodeArgs(nil, &args))
	assert.Equal(t, 5, args.Seconds)
}

func TestDecodeArgsWrongShape(t *testing.T) {
	var args SessionAddArgs
	assert.Error(t, DecodeArgs(map[string]interface{}{"day": "monday"}, &args))
}

func TestSendRoundTrip(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "test.sock")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan Command, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var cmd Command
		if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
			return
		}
		received <- cmd
		_ = json.NewEncoder(conn).Encode(Response{Success: true, Message: "pong", Data: map[string]int{"remaining": 42}})
	}()

	resp, err := Send(socket, Command{Name: CmdPing})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "pong", resp.Message)
	assert.Equal(t, CmdPing, (<-received).Name)

	var data struct {
		Remaining int `json:"remaining"`
	}
	require.NoError(t, DecodeData(resp, &data))
	assert.Equal(t, 42, data.Remaining)
}

func TestSendNoDaemon(t *testing.T) {
	_, err := Send(filepath.Join(t.TempDir(), "missing.sock"), Command{Name: CmdPing})
	assert.Error(t, err)
}
