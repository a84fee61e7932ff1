// Command createadmin provisions an administrator account against the
// configured store. It reads the same configuration as the server.
package main

import (
	"bufio"
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/admincli"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.NewJSONLogger(os.Stderr, "warn")

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if err := admincli.Run(ctx, app.Accounts(), bufio.NewReader(os.Stdin), os.Stdout); err != nil {
		log.Printf("%v", err)
		app.Close()
		os.Exit(1)
	}
}
