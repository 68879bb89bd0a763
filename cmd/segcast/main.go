// Command segcast runs the durable audio capture and replication engine:
// record, inspect, receiver, and replace-source subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "record":
		err = runRecord(ctx, os.Args[2:])
	case "inspect":
		err = runInspect(ctx, os.Args[2:])
	case "receiver":
		err = runReceiver(ctx, os.Args[2:])
	case "replace-source":
		err = runReplaceSource(ctx, os.Args[2:])
	case "-h", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "segcast: unknown subcommand %q\n", os.Args[1])
		usage()
		return 1
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: segcast <record|inspect|receiver|replace-source> [flags]")
	fmt.Fprintln(os.Stderr, "  record --config <path> [--port N]")
	fmt.Fprintln(os.Stderr, "  inspect <sqlite_file> [--port N] [--immutable]")
	fmt.Fprintln(os.Stderr, "  receiver --config <path> [--sync-only]")
	fmt.Fprintln(os.Stderr, "  replace-source --config <path> --show <name>")
}
