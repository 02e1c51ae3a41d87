// Package server implements the MCP (Model Context Protocol) server for sky
// background estimation.
//
// This package provides a JSON-RPC 2.0 server that exposes the stats,
// segmentation and background packages through the MCP protocol, so an MCP
// client can measure and subtract the background of astronomical images.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - image_load: Load an image and report size, format and pixel range
//   - background_stats: Sigma-clipped statistics of an image or region
//   - background_source_mask: Detect and dilate sources, optionally save the mask
//   - background_scalar: One background level and rms for the whole image
//   - background_2d: Mesh background and rms maps, previews and FITS output
//   - background_mesh_overlay: Draw the mesh boxes over an image preview
//
// Every estimation tool starts from the settings in the config file passed
// to New and lets the call arguments override them.
//
// # Image Caching
//
// The server maintains an in-memory cache of loaded images. Images are cached
// by path and reused across multiple tool calls, avoiding redundant disk I/O.
// The cache persists for the lifetime of the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	cfg, _, err := config.Resolve(*configPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := server.New(cfg).Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
