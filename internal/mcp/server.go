package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/protocol2bids/internal/config"
	"github.com/a3tai/protocol2bids/internal/convert"
	"github.com/a3tai/protocol2bids/internal/descriptions"
	"github.com/a3tai/protocol2bids/internal/security"
)

// Server exposes protocol conversion as MCP tools
type Server struct {
	config    *config.Config
	service   *convert.Service
	validator *security.PathValidator
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, service *convert.Service, logger *slog.Logger) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("conversion service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	validator, err := security.NewPathValidator(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to create path validator: %w", err)
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		service:   service,
		validator: validator,
		mcpServer: mcpServer,
		logger:    logger,
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	hint := mcp.WithString("hint",
		mcp.Description("Comma separated variant hints tried before sniffing, e.g. siemens.vb"),
	)
	skipPages := mcp.WithString("skip_pages",
		mcp.Description("Comma separated zero-based pages to ignore"),
	)

	convertTool := mcp.NewTool(
		"protocol_convert",
		mcp.WithDescription(descriptions.ProtocolConvertDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF printout, relative to the configured directory or absolute"),
		),
		hint,
		skipPages,
		mcp.WithString("nii",
			mcp.Description("Comma separated NIfTI images, one per protocol, giving encoding axes and matrix sizes"),
		),
	)
	s.mcpServer.AddTool(convertTool, s.handleConvert)

	recordsTool := mcp.NewTool(
		"protocol_records",
		mcp.WithDescription(descriptions.ProtocolRecordsDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF printout"),
		),
		hint,
		skipPages,
	)
	s.mcpServer.AddTool(recordsTool, s.handleRecords)

	sniffTool := mcp.NewTool(
		"protocol_sniff",
		mcp.WithDescription(descriptions.ProtocolSniffDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF printout"),
		),
	)
	s.mcpServer.AddTool(sniffTool, s.handleSniff)

	variantsTool := mcp.NewTool(
		"protocol_variants",
		mcp.WithDescription(descriptions.ProtocolVariantsDescription),
	)
	s.mcpServer.AddTool(variantsTool, s.handleVariants)
}

func (s *Server) handleConvert(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := s.requirePath(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := request.GetArguments()

	req := convert.Request{Hints: s.config.Hints, SkipPages: s.config.SkipPages}
	if hints := stringList(args["hint"]); len(hints) > 0 {
		req.Hints = hints
	}
	if _, ok := args["skip_pages"]; ok {
		if req.SkipPages, err = intList(args["skip_pages"]); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	for _, nii := range imageList(args["nii"]) {
		if nii == "" {
			req.NII = append(req.NII, "")
			continue
		}
		resolved, err := s.validator.Resolve(nii)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("security validation failed: %v", err)), nil
		}
		req.NII = append(req.NII, resolved)
	}

	conv, err := s.service.Convert(ctx, path, req)
	if err != nil {
		s.logger.Warn("conversion failed", "path", path, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(conv)
}

func (s *Server) handleRecords(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := s.requirePath(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := request.GetArguments()
	hints := stringList(args["hint"])
	if len(hints) == 0 {
		hints = s.config.Hints
	}
	skip, err := intList(args["skip_pages"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.Records(ctx, path, hints, skip)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	records := make([]map[string]any, len(result.Records))
	for i, r := range result.Records {
		records[i] = r.Tree()
	}
	return jsonResult(map[string]any{
		"variant":     result.Variant,
		"model_name":  result.ModelName,
		"records":     records,
		"diagnostics": result.Diagnostics,
	})
}

func (s *Server) handleSniff(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := s.requirePath(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names, err := s.service.Sniff(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(names) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No variant recognises %s", path)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", path, strings.Join(names, ", "))), nil
}

func (s *Server) handleVariants(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	b.WriteString("Supported printout variants:\n")
	for _, v := range s.service.Registry().Variants() {
		fmt.Fprintf(&b, "- %s: %s\n", v.Name, v.Description)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// requirePath reads the path argument and keeps it inside the configured
// directory
func (s *Server) requirePath(request mcp.CallToolRequest) (string, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return "", err
	}
	resolved, err := s.validator.Resolve(path)
	if err != nil {
		return "", fmt.Errorf("security validation failed: %w", err)
	}
	return resolved, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// stringList accepts "a,b" as well as a JSON array of strings
func stringList(v any) []string {
	var parts []string
	switch x := v.(type) {
	case string:
		parts = strings.Split(x, ",")
	case []any:
		for _, item := range x {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	case []string:
		parts = x
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// imageList reads the nii argument like stringList but keeps empty
// entries: images are matched to protocols by position and an empty entry
// leaves its protocol without one.
func imageList(v any) []string {
	var parts []string
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		parts = strings.Split(x, ",")
	case []any:
		for _, item := range x {
			s, _ := item.(string)
			parts = append(parts, s)
		}
	case []string:
		parts = x
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// intList accepts "0,2" as well as a JSON array of numbers
func intList(v any) ([]int, error) {
	var out []int
	switch x := v.(type) {
	case nil:
	case string:
		for _, p := range stringList(x) {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid page %q", p)
			}
			out = append(out, n)
		}
	case []any:
		for _, item := range x {
			f, ok := item.(float64)
			if !ok || f != float64(int(f)) {
				return nil, fmt.Errorf("invalid page %v", item)
			}
			out = append(out, int(f))
		}
	case float64:
		out = append(out, int(x))
	default:
		return nil, fmt.Errorf("invalid pages %v", v)
	}
	for _, n := range out {
		if n < 0 {
			return nil, fmt.Errorf("invalid page %d", n)
		}
	}
	return out, nil
}

// Run serves MCP over stdio until the client disconnects or ctx is done
func (s *Server) Run(ctx context.Context) error {
	return s.serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Debug("serving MCP over stdio", "directory", s.config.Directory)

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	err := stdio.Listen(ctx, in, out)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
}
