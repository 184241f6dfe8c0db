package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/fieldseal/internal/flagx"
	"github.com/dmitrijs2005/fieldseal/internal/server/cli"
	"github.com/dmitrijs2005/fieldseal/internal/server/config"
	"github.com/fatih/color"
)

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig(os.Args[1:])
	root := cli.NewRootCommand(cfg)
	root.SetArgs(flagx.RemoveArgs(os.Args[1:], config.Flags))

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprint("error:"), err)
		stop()
		os.Exit(1)
	}

}
