package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/whitemax/maxd/internal/config"
	"github.com/whitemax/maxd/internal/daemon"
	"github.com/whitemax/maxd/internal/session"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	runtimeFlag := flag.String("runtime", "", "runtime host command (overrides config)")
	flag.Parse()

	profile := session.Resolve(*profileFlag)
	if err := session.ValidateName(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	runtimeCommand := *runtimeFlag
	if runtimeCommand == "" {
		if cfg, err := config.Load(session.ConfigPath()); err == nil {
			runtimeCommand = cfg.RuntimeCommand
		}
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			ProfileName:    profile,
			RuntimeCommand: runtimeCommand,
		}),
	)

	app.Run()
}
