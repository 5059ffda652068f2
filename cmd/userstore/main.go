// Package main manages the file-backed user store from the command line.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	userstorecmd "github.com/louisbranch/objectstore/internal/cmd/userstore"
	"github.com/louisbranch/objectstore/internal/platform/config"
)

func main() {
	cfg, err := userstorecmd.ParseConfig(flag.CommandLine, os.Args[1:], os.LookupEnv)
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[USERSTORE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := userstorecmd.Run(ctx, cfg, os.Stdout); err != nil {
		stop()
		config.Exitf("%s: %v", cfg.Command, err)
	}
}
