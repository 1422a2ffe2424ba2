package uds

import (
	"encoding/json"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), DefaultSocketName)
	srv := NewServer(sock, log.New(io.Discard, "", 0))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })

	cli := NewClient(sock)
	cli.SetTimeout(5 * time.Second)
	return srv, cli
}

func TestRoundTrip(t *testing.T) {
	srv, cli := startTestServer(t)

	srv.Handle(CmdPing, func(_ *Request) *Response {
		return SuccessResponse(map[string]string{"pong": "ok"})
	})

	resp, err := cli.SendCommand(CmdPing, nil)
	require.NoError(t, err)
	require.True(t, resp.Success)

	var data map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "ok", data["pong"])
}

func TestParamsDelivered(t *testing.T) {
	srv, cli := startTestServer(t)

	type enqueueParams struct {
		Type     string `json:"type"`
		Priority int    `json:"priority"`
	}

	var got enqueueParams
	srv.Handle(CmdEnqueue, func(req *Request) *Response {
		if err := json.Unmarshal(req.Params, &got); err != nil {
			return ErrorResponse(ErrCodeValidation, err.Error())
		}
		return SuccessResponse(nil)
	})

	resp, err := cli.SendCommand(CmdEnqueue, enqueueParams{Type: "bugfix", Priority: 7})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, "bugfix", got.Type)
	assert.Equal(t, 7, got.Priority)
}

func TestUnknownCommand(t *testing.T) {
	_, cli := startTestServer(t)

	resp, err := cli.SendCommand("no_such_command", nil)
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnknownCommand, resp.Error.Code)
}

func TestProtocolMismatch(t *testing.T) {
	srv, cli := startTestServer(t)
	srv.Handle(CmdPing, func(_ *Request) *Response { return SuccessResponse(nil) })

	resp, err := cli.Send(&Request{ProtocolVersion: 99, Command: CmdPing})
	require.NoError(t, err)
	require.False(t, resp.Success)
	assert.Equal(t, ErrCodeProtocolMismatch, resp.Error.Code)
}

func TestStaleSocketReplaced(t *testing.T) {
	sock := filepath.Join(t.TempDir(), DefaultSocketName)
	logger := log.New(io.Discard, "", 0)

	srv1 := NewServer(sock, logger)
	require.NoError(t, srv1.Start())
	require.NoError(t, srv1.Stop())

	// A second start after an unclean exit must not fail on the leftover file.
	srv2 := NewServer(sock, logger)
	require.NoError(t, srv2.Start())
	defer func() { _ = srv2.Stop() }()

	srv2.Handle(CmdPing, func(_ *Request) *Response { return SuccessResponse(nil) })
	resp, err := NewClient(sock).SendCommand(CmdPing, nil)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}
