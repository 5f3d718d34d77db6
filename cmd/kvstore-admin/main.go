// Package main provides kvstore-admin, an operator tool for the documents table behind kvengine.
//
// Usage:
//
//	kvstore-admin [global flags] <command> [command flags]
//
// Commands:
//
//	init-schema    create the documents table if it does not exist
//	events         list the events of a stream (-stream, -min, -max)
//	range          list events committed at or after an anchor (-match path=value, -amount)
//	undispatched   list all events not yet dispatched
//	dispatch       mark one event as dispatched (-id)
//	snapshot       show the latest snapshot of a stream (-stream, -max)
//
// Results are written to stdout as one JSON document per line, logs go to stderr as JSON.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}
