package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"pairelay/internal/client"
	"pairelay/internal/config"
	"pairelay/internal/model"
	"pairelay/internal/resolver"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// mcp-bridge exposes the delivery flow as externally invocable tools over
// MCP stdio: send_message pushes a message to the remote peer and
// check_status probes its health endpoint.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	res := resolver.NewCachedResolver(cfg.Resolver.CacheTTL())
	peer, err := client.NewPeerClient(cfg.Remote.URL, cfg.Remote.APIKey, res, cfg.Client.SendTimeout(), cfg.Client.HealthTimeout(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure peer client")
	}

	s := server.NewMCPServer("pai-relay-bridge", cfg.System.Version)

	sendTool := mcp.NewTool("send_message",
		mcp.WithDescription("Send a message to the remote PAI instance"),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The message content to send"),
		),
		mcp.WithString("priority",
			mcp.Description("Priority level (normal, high, urgent)"),
			mcp.Enum("normal", "high", "urgent"),
			mcp.DefaultString("normal"),
		),
	)
	s.AddTool(sendTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := request.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		priority := request.GetString("priority", string(model.PriorityNormal))

		outcome := peer.AttemptDelivery(ctx, client.Payload{
			Sender:      cfg.System.Name,
			Content:     content,
			Priority:    model.Priority(priority),
			MessageType: model.TypeText,
		})
		if !outcome.Delivered() {
			return mcp.NewToolResultText(fmt.Sprintf("Message not delivered: %s", outcome.Reason)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Message sent. Response: %s", string(outcome.Body))), nil
	})

	statusTool := mcp.NewTool("check_status",
		mcp.WithDescription("Check whether the remote PAI instance is online"),
	)
	s.AddTool(statusTool, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		outcome := peer.Health(ctx)
		if !outcome.Delivered() {
			return mcp.NewToolResultText(fmt.Sprintf("Remote unreachable: %s", outcome.Reason)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Remote online: %s", string(outcome.Body))), nil
	})

	if err := server.ServeStdio(s); err != nil {
		logger.Fatal().Err(err).Msg("mcp bridge exited")
	}
}
