// Command vidshare-fn serves the vidshare API behind API Gateway proxy events.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"vidshare/cmd/internal/app"
	authapi "vidshare/cmd/internal/auth/api"
	"vidshare/cmd/internal/gateway"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)

	// The pipeline consumer belongs to the long-running server.
	cfg.PipelineConsumer = false
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	adapter := gateway.New(a.APIHandler(), logger, gateway.WithAllowOrigin(authapi.LoadConfigFromEnv().AllowOrigin))
	lambda.Start(adapter.Handle)
}
