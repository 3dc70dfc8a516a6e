package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"crystallize-agent/handler"
	"crystallize-agent/internal/integrations/gemini"
	"crystallize-agent/internal/integrations/paramstore"
	"crystallize-agent/internal/repository"
	"crystallize-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	dynamoClient := awsdynamodb.NewFromConfig(cfg)
	recordClient, err := repository.New(dynamoClient, stateTable)
	if err != nil {
		slog.Error("failed to create record client", "err", err)
		os.Exit(1)
	}

	geminiClient, err := gemini.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create Gemini client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	assistant, err := usecase.NewService(ssmClient, geminiClient, recordClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create assistant service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(assistant)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}
