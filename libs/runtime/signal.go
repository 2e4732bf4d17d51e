package runtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext is canceled by the first SIGINT or SIGTERM so servers can drain. A second
// signal while draining exits immediately with status 1.
func SignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
			return
		}
		<-sigs
		os.Exit(1)
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}
