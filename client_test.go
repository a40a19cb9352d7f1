package rdx

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rsms/go-testutil"
	"github.com/rsms/rdx/resp"
)

// fakeClusterServer starts a single-node "cluster" that answers HELLO,
// CLUSTER SHARDS (a one-shard topology pointing back at itself), and
// whatever else handler supplies, the way cluster/router_test.go's
// fakeNode does for the lower-level router tests.
func fakeClusterServer(t *testing.T, handler func(resp.Command) resp.Value) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(nc, host, port, handler)
		}
	}()
	return ln.Addr().String()
}

func serveConn(nc net.Conn, host string, port int, handler func(resp.Command) resp.Value) {
	defer nc.Close()
	var dec resp.StreamDecoder
	buf := make([]byte, 4096)
	for {
		v, err := dec.Next()
		if err != nil {
			if err != resp.ErrNeedMore {
				return
			}
			n, rerr := nc.Read(buf)
			if n > 0 {
				dec.Feed(buf[:n])
			}
			if rerr != nil {
				return
			}
			continue
		}
		cmd := valueToCommand(v)
		var reply resp.Value
		switch cmd.Name {
		case "HELLO":
			reply = resp.SimpleString("OK")
		case "CLUSTER":
			reply = oneShardTopology(host, port)
		case "COMMAND":
			reply = resp.Value{Kind: resp.KindError, Err: &resp.ErrorValue{Message: "ERR unknown subcommand"}}
		default:
			reply = handler(cmd)
		}
		if _, err := nc.Write(resp.AppendValue(nil, reply)); err != nil {
			return
		}
	}
}

func valueToCommand(v resp.Value) resp.Command {
	args := make([][]byte, 0, len(v.Elems))
	var name string
	for i, e := range v.Elems {
		if i == 0 {
			name = string(e.Bulk)
			continue
		}
		args = append(args, e.Bulk)
	}
	return resp.Command{Name: name, Args: args}
}

// oneShardTopology builds a CLUSTER SHARDS reply (flattened-array shape)
// describing a single master shard owning every slot, at host:port.
func oneShardTopology(host string, port int) resp.Value {
	node := resp.Array([]resp.Value{
		resp.BulkString([]byte("id")), resp.BulkString([]byte("node-1")),
		resp.BulkString([]byte("ip")), resp.BulkString([]byte(host)),
		resp.BulkString([]byte("port")), resp.Integer(int64(port)),
		resp.BulkString([]byte("role")), resp.BulkString([]byte("master")),
	})
	shard := resp.Array([]resp.Value{
		resp.BulkString([]byte("slots")), resp.Array([]resp.Value{resp.Integer(0), resp.Integer(16383)}),
		resp.BulkString([]byte("nodes")), resp.Array([]resp.Value{node}),
	})
	return resp.Array([]resp.Value{shard})
}

func TestClientSendGetSet(t *testing.T) {
	assert := testutil.NewAssert(t)

	store := map[string]string{}
	addr := fakeClusterServer(t, func(cmd resp.Command) resp.Value {
		switch cmd.Name {
		case "SET":
			store[string(cmd.Args[0])] = string(cmd.Args[1])
			return resp.SimpleString("OK")
		case "GET":
			v, ok := store[string(cmd.Args[0])]
			if !ok {
				return resp.BulkString(nil)
			}
			return resp.BulkString([]byte(v))
		default:
			return resp.Value{Kind: resp.KindError, Err: &resp.ErrorValue{Message: "ERR unexpected " + cmd.Name}}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := New(ctx, Config{Nodes: []string{addr}, ConnectTimeout: time.Second}, nil)
	assert.Ok("connect", err == nil)
	defer client.Close()

	v, err := client.Send(ctx, "SET", "foo", "bar")
	assert.Ok("set ok", err == nil)
	assert.Eq("set reply", v.String(), "OK")

	v, err = client.Send(ctx, "GET", "foo")
	assert.Ok("get ok", err == nil)
	assert.Eq("get reply", v.String(), "bar")
}

func TestClientSendBatchPreservesOrder(t *testing.T) {
	assert := testutil.NewAssert(t)

	store := map[string]string{"a": "1", "b": "2", "c": "3"}
	addr := fakeClusterServer(t, func(cmd resp.Command) resp.Value {
		if cmd.Name == "GET" {
			return resp.BulkString([]byte(store[string(cmd.Args[0])]))
		}
		return resp.Value{Kind: resp.KindError, Err: &resp.ErrorValue{Message: "ERR unexpected"}}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := New(ctx, Config{Nodes: []string{addr}}, nil)
	assert.Ok("connect", err == nil)
	defer client.Close()

	vs, err := client.SendBatch(ctx, []resp.Command{
		resp.NewCommand("GET", "a"),
		resp.NewCommand("GET", "b"),
		resp.NewCommand("GET", "c"),
	})
	assert.Ok("batch ok", err == nil)
	assert.Eq("count", len(vs), 3)
	assert.Eq("a", vs[0].String(), "1")
	assert.Eq("b", vs[1].String(), "2")
	assert.Eq("c", vs[2].String(), "3")
}

func TestClientNoSeedNodes(t *testing.T) {
	assert := testutil.NewAssert(t)
	_, err := New(context.Background(), Config{}, nil)
	assert.Ok("errors without seeds", err != nil)
	rerr, ok := err.(*Err)
	assert.Ok("is *Err", ok)
	assert.Eq("kind", rerr.Kind, ErrIO)
}
