package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/accelmap/rfqmap/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of a running sweep",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cfg.StatusAddr == "" {
		return fmt.Errorf("status_addr is not configured")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get("http://" + cfg.StatusAddr + "/api/sweep/status")
	if err != nil {
		return fmt.Errorf("no sweep reachable at %s: %w", cfg.StatusAddr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status request failed: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return nil
}
