package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ironsheep/skybg-mcp/internal/config"
	"github.com/ironsheep/skybg-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func printHelp() {
	fmt.Println("skybg-mcp - MCP server for astronomical sky background estimation")
	fmt.Println()
	fmt.Println("Usage: skybg-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config PATH    YAML file with default clipping, masking and mesh settings")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  SKYBG_MCP_CONFIG=PATH        Config file when --config is not given")
	fmt.Println("  SKYBG_MCP_LOG_LEVEL=debug    Enable debug logging")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("The config file is reloaded when it changes.")
}

func main() {
	var configPath string

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "--version" || arg == "-v" || arg == "version":
			fmt.Printf("skybg-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case arg == "--help" || arg == "-h" || arg == "help":
			printHelp()
			return
		case arg == "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a path")
				os.Exit(2)
			}
			i++
			configPath = args[i]
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		default:
			fmt.Fprintf(os.Stderr, "unknown option %q (see --help)\n", arg)
			os.Exit(2)
		}
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	debug := os.Getenv("SKYBG_MCP_LOG_LEVEL") == "debug"
	if debug {
		log.Printf("Sky background MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	cfg, path, err := config.Resolve(configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if debug && path != "" {
		log.Printf("loaded config %s", path)
	}

	server.Version = Version
	srv := server.New(cfg)

	if path != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		err := config.Watch(ctx, path,
			func(c *config.Config) {
				srv.SetConfig(c)
				log.Printf("reloaded config %s", path)
			},
			func(err error) {
				log.Printf("config reload failed, keeping previous settings: %v", err)
			},
		)
		if err != nil {
			log.Printf("config changes will not be picked up: %v", err)
		}
	}

	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
