package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/funvibe/sigcheck/internal/queryserver"
)

func runServe(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet("serve", stderr, &opts)
	addr := fs.String("addr", "127.0.0.1:7070", "listen address")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := opts.open(ctx, fs.Args(), stderr)
	if err != nil {
		fmt.Fprintf(stderr, "sigcheck: %v\n", err)
		return exitFatal
	}
	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(stderr, "sigcheck: %v\n", err)
		return exitFatal
	}

	// SIGHUP re-reads modified files and submits them as an edit.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				n, err := p.reload(ctx, fs.Args())
				if err != nil {
					p.logger.Printf("reload: %v", err)
					continue
				}
				p.logger.Printf("reload: %d changed file(s)", n)
			}
		}
	}()

	fmt.Fprintf(stdout, "Serving %s on %s\n", queryserver.ServiceName, lis.Addr())
	if err := queryserver.New(p.driver, p.logger).Serve(ctx, lis); err != nil {
		fmt.Fprintf(stderr, "sigcheck: %v\n", err)
		return exitFatal
	}
	return exitOK
}
