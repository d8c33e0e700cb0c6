package main

import (
	"context"
	"log"
	"os"

	"github.com/akarpov87/taskhive/internal/buildinfo"
	"github.com/akarpov87/taskhive/internal/client/cli"
	"github.com/akarpov87/taskhive/internal/client/config"
)

// taskhive-sync reconciles the local database with the configured server:
// a single sync cycle by default, continuously with -w.
func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
