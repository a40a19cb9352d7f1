package mux

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rsms/go-testutil"
	"github.com/rsms/rdx/conn"
	"github.com/rsms/rdx/resp"
)

// fakeServer accepts one connection, reads the client's commands, and then
// writes replies in the given order, the minimum needed to exercise the FIFO
// match.
func fakeServer(t *testing.T, ln net.Listener, replies []resp.Value) {
	nc, err := ln.Accept()
	if err != nil {
		return
	}
	defer nc.Close()
	buf := make([]byte, 4096)
	// The client may coalesce all commands into one write; a single read is
	// enough to have received the whole batch before replying to each.
	if _, err := nc.Read(buf); err != nil {
		return
	}
	for _, v := range replies {
		if _, err := nc.Write(mustEncode(v)); err != nil {
			return
		}
	}
}

func mustEncode(v resp.Value) []byte {
	return resp.AppendValue(nil, v)
}

func dial(t *testing.T, addr string) net.Conn {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return nc
}

func TestSendBatchPreservesOrder(t *testing.T) {
	assert := testutil.NewAssert(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Ok("listen", err == nil)
	defer ln.Close()

	replies := []resp.Value{
		resp.SimpleString("OK"),
		resp.Integer(1),
		resp.BulkString([]byte("hello")),
	}
	go fakeServer(t, ln, replies)

	nc := dial(t, ln.Addr().String())
	c := conn.NewFromConn(nc, conn.Config{Addr: ln.Addr().String()}, nil)
	m := New(c, nil, nil, 0)
	m.Start()
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := m.SendBatch(ctx, []resp.Command{
		resp.NewCommand("SET", "a", "1"),
		resp.NewCommand("INCR", "b"),
		resp.NewCommand("GET", "c"),
	})
	assert.Ok("no error", err == nil)
	assert.Eq("count", len(got), 3)
	assert.Eq("first", got[0].Str, "OK")
	assert.Eq("second", got[1].Int, int64(1))
	assert.Eq("third", string(got[2].Bulk), "hello")
}

func TestDisconnectFailsPending(t *testing.T) {
	assert := testutil.NewAssert(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Ok("listen", err == nil)
	defer ln.Close()

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		// Read the command bytes then close without ever replying, forcing
		// the pending request to fail on EOF.
		buf := make([]byte, 4096)
		nc.Read(buf)
		nc.Close()
	}()

	nc := dial(t, ln.Addr().String())
	c := conn.NewFromConn(nc, conn.Config{Addr: ln.Addr().String()}, nil)
	m := New(c, nil, nil, 0)
	m.Start()
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = m.Send(ctx, resp.NewCommand("GET", "a"))
	assert.Ok("error on disconnect", err != nil)
}
