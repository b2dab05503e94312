package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/accelmap/rfqmap/internal/checkpoint"
	"github.com/accelmap/rfqmap/internal/config"
	"github.com/accelmap/rfqmap/internal/fieldmap"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Rebuild the field-map table from an existing checkpoint store",
	Long: `Assemble re-emits the final field-map table from checkpointed per-cell
samples without touching the engine. Useful after changing the output path or
recovering a sweep that crashed during assembly.`,
	RunE: runAssemble,
}

func init() {
	rootCmd.AddCommand(assembleCmd)
}

func runAssemble(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	store, err := checkpoint.Open(cfg.CheckpointDB)
	if err != nil {
		return err
	}
	defer store.Close()

	cells, err := store.Cells()
	if err != nil {
		return err
	}
	if len(cells) == 0 {
		return fmt.Errorf("checkpoint store %s holds no cells", cfg.CheckpointDB)
	}

	f, err := os.Create(cfg.Output)
	if err != nil {
		return fmt.Errorf("create output %s: %w", cfg.Output, err)
	}
	if err := fieldmap.Assemble(store, cfg.FourQuadrant, f); err != nil {
		f.Close()
		return fmt.Errorf("assemble field map: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info("field map assembled", "cells", len(cells), "output", cfg.Output)
	return nil
}
