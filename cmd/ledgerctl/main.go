package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"payrecon/cmd/ledgerctl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, os.Args[1:], os.Stdout, commands.OpenApp); err != nil {
		pterm.Error.Println(commands.Capitalize(err.Error()))
		stop()
		os.Exit(1)
	}
}
