package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrSignalReceived ends a run cleanly on SIGINT or SIGTERM.
var ErrSignalReceived = errors.New("received signal")

// Runnable is one long lived loop of a role.
type Runnable func(ctx context.Context) error

// Run starts every loop in one group alongside a kill listener. A cancelled
// context or a received signal is a clean shutdown.
func Run(ctx context.Context, name string, loops ...Runnable) error {
	group, groupCtx := errgroup.WithContext(ctx)
	log.Info().Str("role", name).Msg("starting...")

	//kill listener
	group.Go(func() error {
		signalChannel := make(chan os.Signal, 1)
		signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signalChannel)
		select {
		case sig := <-signalChannel:
			log.Info().Str("signal", sig.String()).Msg("received signal")
			return fmt.Errorf("%w: %s", ErrSignalReceived, sig)
		case <-groupCtx.Done():
			log.Debug().Msg("closing signal goroutine")
			return groupCtx.Err()
		}
	})

	for _, loop := range loops {
		loop := loop
		group.Go(func() error {
			return loop(groupCtx)
		})
	}

	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrSignalReceived) {
		return fmt.Errorf("%s stopping due to error - %w", name, err)
	}
	log.Info().Str("role", name).Msg("shutting down")
	return nil
}
