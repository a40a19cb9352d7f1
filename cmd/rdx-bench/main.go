// Command rdx-bench connects to a cluster and runs a sequence of commands,
// printing each reply. Grounded on the teacher's examples/redis/main.go
// (connect, run a sequence of commands, print results) but driving the
// cluster client this module implements instead of the ent ORM, since the
// ORM layer itself is out of this spec's scope.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rsms/go-log"
	"github.com/rsms/rdx"
)

type cmdList []string

func (c *cmdList) String() string { return strings.Join(*c, "; ") }

func (c *cmdList) Set(s string) error {
	*c = append(*c, s)
	return nil
}

func main() {
	nodes := flag.String("nodes", "127.0.0.1:6379", "comma-separated cluster seed nodes")
	var cmds cmdList
	flag.Var(&cmds, "cmd", "command to run, e.g. -cmd \"SET foo bar\" (repeatable)")
	timeout := flag.Duration("timeout", 5*time.Second, "per-command timeout")
	flag.Parse()

	if len(cmds) == 0 {
		cmds = cmdList{"PING"}
	}

	log.RootLogger.SetWriter(os.Stderr)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := rdx.New(ctx, rdx.Config{
		Nodes:          strings.Split(*nodes, ","),
		CommandTimeout: *timeout,
		RetryOnError:   true,
	}, log.RootLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rdx-bench: connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	for _, line := range cmds {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		v, err := client.Send(ctx, fields[0], fields[1:]...)
		if err != nil {
			fmt.Printf("%s => error: %v\n", line, err)
			continue
		}
		fmt.Printf("%s => %v\n", line, v)
	}
}
