package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Send delivers cmd to the daemon listening on socketPath and returns its
// response. A response with Success=false is not an error here.
func Send(socketPath string, cmd Command) (Response, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("connect to daemon socket %s: %w", socketPath, err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return Response{}, fmt.Errorf("send command: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("receive response: %w", err)
	}
	return resp, nil
}

// DecodeData converts the generic data of a Response into out.
func DecodeData(resp Response, out interface{}) error {
	return DecodeArgs(resp.Data, out)
}
