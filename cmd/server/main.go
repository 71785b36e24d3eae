package main

import (
	"context"
	"flag"
	"log"

	"github.com/voyagerhq/auth-service/internal/server"
	"github.com/voyagerhq/auth-service/internal/server/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional, env vars otherwise)")
	flag.Parse()

	ctx := context.Background()
	cfg := config.MustLoad(*configPath)

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)
}
