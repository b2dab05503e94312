package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/accelmap/rfqmap/internal/api"
	"github.com/accelmap/rfqmap/internal/checkpoint"
	"github.com/accelmap/rfqmap/internal/config"
	"github.com/accelmap/rfqmap/internal/engine"
	"github.com/accelmap/rfqmap/internal/sweep"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run (or resume) the full cell sweep and assemble the field map",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	lengths, err := config.LoadCellLengths(cfg.CellsFile)
	if err != nil {
		return err
	}
	log.Info("cell table loaded", "cells", len(lengths), "four_quadrant", cfg.FourQuadrant)

	store, err := checkpoint.Open(cfg.CheckpointDB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := engine.Connect(ctx, engine.SessionConfig{
		Host:           cfg.Engine.Host,
		Port:           cfg.Engine.Port,
		Command:        cfg.Engine.Command,
		Args:           cfg.Engine.Args,
		ConnectTimeout: cfg.Engine.ConnectTimeout,
	}, log)
	if err != nil {
		return err
	}
	defer session.Close()

	controller := sweep.New(cfg, lengths, store, session, log)

	g, gctx := errgroup.WithContext(ctx)

	var httpServer *http.Server
	if cfg.StatusAddr != "" {
		httpServer = &http.Server{
			Addr:         cfg.StatusAddr,
			Handler:      api.NewServer(controller.Progress(), store, log),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		g.Go(func() error {
			log.Info("status api listening", "addr", cfg.StatusAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer stop() // sweep done: release the status API
		return controller.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
