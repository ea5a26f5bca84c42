// Package cmd provides CLI commands for Sage.
//
// Commands:
//   - serve: HTTP API server with SSE streaming
//   - ask: one-shot question from the command line
//   - sessions: list or delete stored conversations
//
// Signal handling and graceful shutdown are implemented for all
// commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Version information (injected at build time via ldflags).
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Execute is the main entry point for the Sage CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "ask":
		return runAsk(os.Args[2:])
	case "sessions":
		return runSessions(os.Args[2:])
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Sage - Retrieval-grounded AI chat engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sage serve           Start the HTTP API server")
	fmt.Println("  sage ask <question>  Ask a one-shot question")
	fmt.Println("  sage sessions        List stored conversations")
	fmt.Println("  sage sessions delete <id>  Delete a conversation")
	fmt.Println("  sage --version       Show version information")
	fmt.Println("  sage --help          Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY       Gemini API key (provider: gemini)")
	fmt.Println("  OPENAI_API_KEY       OpenAI API key (provider: openai)")
	fmt.Println("  DATABASE_URL         PostgreSQL connection URL")
	fmt.Println("  SAGE_KNOWLEDGE_DIR   Knowledge base directory (default: ./knowledge)")
	fmt.Println("  DEBUG                Enable debug logging")
}
