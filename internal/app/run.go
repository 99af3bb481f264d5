package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run starts every long-lived loop and blocks until the context is
// cancelled or one of them fails.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("destek runtime starting", "addr", r.cfg.HTTPAddr, "environment", r.cfg.Environment)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.worker.Run(groupCtx)
	})
	group.Go(func() error {
		return r.maintenance.Start(groupCtx)
	})
	group.Go(func() error {
		return r.registry.Watch(groupCtx)
	})
	for _, conn := range r.connectors {
		connector := conn
		group.Go(func() error {
			return connector.Start(groupCtx)
		})
	}
	group.Go(func() error {
		err := r.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
