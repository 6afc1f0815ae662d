package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sevlyar/go-daemon"
	"go.uber.org/zap"

	"keyflow/internal/app"
	"keyflow/internal/config"
	"keyflow/internal/logger"
)

var (
	configPath = flag.String("c", "", "Path to configuration file (defaults to ./config.yaml, ~/.config/keyflow/config.yaml, /etc/keyflow/config.yaml)")
	logPath    = flag.String("log", "", "Path to log file (defaults to stderr; required with -d)")
	daemonize  = flag.Bool("d", false, "Detach and run in the background")
)

func main() {
	flag.Parse()

	if *daemonize {
		if *logPath == "" {
			fmt.Fprintln(os.Stderr, "-d requires -log: a detached daemon has no stderr")
			os.Exit(1)
		}
		dctx := &daemon.Context{
			PidFileName: "/tmp/keyflowd.pid",
			PidFilePerm: 0644,
			Umask:       027,
		}
		child, err := dctx.Reborn()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to daemonize: %v\n", err)
			os.Exit(1)
		}
		if child != nil {
			// Parent: the child carries on.
			fmt.Printf("keyflowd started, pid %d\n", child.Pid)
			return
		}
		defer dctx.Release()
	}

	if *logPath != "" {
		if err := os.MkdirAll(filepath.Dir(*logPath), 0750); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment, *logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to create application", zap.Error(err))
	}
	if err := application.Run(); err != nil {
		log.Fatal("Application exited with error", zap.Error(err))
	}
	log.Info("keyflowd finished")
}
