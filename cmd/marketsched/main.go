package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"marketsched/internal/app"
)

func main() {
	var (
		cfgPath    string
		seed       bool
		statusAddr string
		exportPath string
	)
	flag.StringVar(&cfgPath, "config", "./marketsched.yaml", "path to config file (yaml or json)")
	flag.BoolVar(&seed, "defaults", false, "seed the built-in task set when the config defines no tasks")
	flag.StringVar(&statusAddr, "status", "", "override the status endpoint listen address")
	flag.StringVar(&exportPath, "export", "", "write the task registry snapshot to this file and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{
		ConfigPath:   cfgPath,
		SeedDefaults: seed,
		StatusAddr:   statusAddr,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if exportPath != "" {
		err := a.Registry().ExportSnapshot(exportPath)
		a.Stop(context.Background())
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer stopCancel()
	a.Stop(stopCtx)
}
