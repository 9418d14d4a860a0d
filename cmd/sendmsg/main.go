// Command sendmsg sends one fire-and-forget message through an Anemochory
// path built from a node pool bootstrap file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"anemochory/client"
	"anemochory/domain"
	"anemochory/infrastructure/cryptography/padding"
	"anemochory/infrastructure/onion"
	"anemochory/infrastructure/routing/nodepool"
	"anemochory/infrastructure/transport"
)

func main() {
	poolPath := flag.String("pool", "", "path to a node pool bootstrap JSON file")
	hopCount := flag.Int("hops", domain.MinHops, "number of hops in the built path")
	timeout := flag.Duration("timeout", 10*time.Second, "overall send timeout")
	flag.Parse()

	message := strings.Join(flag.Args(), " ")
	if message == "" {
		fmt.Fprintln(os.Stderr, "usage: sendmsg -pool <bootstrap.json> [-hops N] <message...>")
		os.Exit(2)
	}
	if *poolPath == "" {
		fmt.Fprintln(os.Stderr, "sendmsg: -pool is required")
		os.Exit(2)
	}

	f, err := os.Open(*poolPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sendmsg: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	pool, _, err := nodepool.LoadPool(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sendmsg: load pool: %v\n", err)
		os.Exit(1)
	}

	c := client.New(pool, onion.NewBuilder(padding.New()), transport.NewTCPSender(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result := c.Send(ctx, []byte(message), *hopCount)
	if !result.Success {
		fmt.Fprintf(os.Stderr, "sendmsg: send failed: %v\n", result.Error)
		os.Exit(1)
	}

	fmt.Printf("sent via %d-hop path, entry %s:%d, %d retries\n", result.PathLength, result.Entry.Address, result.Entry.Port, result.Retries)
}
