// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ops-console/internal/api"
	"github.com/pdiddy/ops-console/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console JSON API server",
	Long: `Serve exposes the knowledge base over HTTP for the web console. Read
endpoints are open; mutating endpoints require the api-token secret as
a bearer token when one is configured under .secrets/.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	addr, _ := cmd.Flags().GetString("addr")
	if v := viper.GetString("listen_addr"); v != "" && !cmd.Flags().Changed("addr") {
		addr = v
	}

	cfg := types.ServerConfig{
		Addr:      addr,
		AuthToken: apiToken,
	}
	server := api.New(store, cfg)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "Listening on %s\n", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-stop:
		fmt.Fprintln(os.Stderr, "Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	}
}

func init() {
	serveCmd.Flags().String("addr", ":8085", "listen address")

	rootCmd.AddCommand(serveCmd)
}
