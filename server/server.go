// Package server exposes the tool registry, the resource resolver and the
// prompt catalog as MCP-style JSON-RPC 2.0 methods over HTTP.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/encoding"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/prompts"
	"github.com/effective-security/toolflow/resources"
	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/xlog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolflow", "server")

// ProtocolVersion is reported by initialize.
const ProtocolVersion = "2025-03-26"

// maxBodySize limits a request body.
const maxBodySize = 4 << 20

// Option configures the Server.
type Option func(*Server)

// WithName sets the server name and version reported by initialize.
func WithName(name, version string) Option {
	return func(s *Server) {
		s.info = Implementation{Name: name, Version: version}
	}
}

// WithInstructions sets the instructions reported by initialize.
func WithInstructions(instructions string) Option {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithResultFormat sets the encoding of tool success values.
func WithResultFormat(mode encoding.Mode) Option {
	return func(s *Server) {
		s.resultFormat = mode
	}
}

// Server serves JSON-RPC requests.
type Server struct {
	dispatcher   *dispatcher.Dispatcher
	catalog      *prompts.Catalog
	info         Implementation
	instructions string
	resultFormat encoding.Mode
}

// New returns a server calling tools through d. The catalog may be nil.
func New(d *dispatcher.Dispatcher, catalog *prompts.Catalog, opts ...Option) *Server {
	if catalog == nil {
		catalog = prompts.NewCatalog()
	}
	s := &Server{
		dispatcher:   d,
		catalog:      catalog,
		info:         Implementation{Name: "toolflow", Version: "1.0.0"},
		resultFormat: encoding.ModeDefault,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler: POST /rpc and GET /health.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/rpc", s.handleRPC)
	return r
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.KV(xlog.INFO, "status", "listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, &Response{JSONRPC: JSONRPCVersion, ID: json.RawMessage("null"), Error: newError(CodeParseError, "failed to read request")})
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, &Response{JSONRPC: JSONRPCVersion, ID: json.RawMessage("null"), Error: newError(CodeParseError, "parse error")})
		return
	}
	if req.JSONRPC != JSONRPCVersion || req.Method == "" {
		writeJSON(w, &Response{JSONRPC: JSONRPCVersion, ID: idOrNull(req.ID), Error: newError(CodeInvalidRequest, "invalid request")})
		return
	}

	ctx := r.Context()
	result, rpcErr := s.Handle(ctx, req.Method, req.Params)

	logger.ContextKV(ctx, xlog.DEBUG,
		"method", req.Method,
		"request_id", middleware.GetReqID(ctx),
		"failed", rpcErr != nil,
	)

	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := &Response{JSONRPC: JSONRPCVersion, ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	writeJSON(w, resp)
}

func idOrNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func writeJSON(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.KV(xlog.ERROR, "reason", "encode", "err", err.Error())
	}
}

// Handle executes one method.
func (s *Server) Handle(ctx context.Context, method string, params json.RawMessage) (any, *Error) {
	switch method {
	case "initialize":
		return s.initialize(), nil
	case "ping", "notifications/initialized":
		return struct{}{}, nil
	case "tools/list":
		return s.listTools(), nil
	case "tools/call":
		var p CallToolParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return s.callTool(ctx, &p), nil
	case "resources/list":
		return s.listResources(), nil
	case "resources/templates/list":
		return s.listResourceTemplates(), nil
	case "resources/read":
		var p ReadResourceParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return s.readResource(ctx, &p)
	case "prompts/list":
		return s.listPrompts(), nil
	case "prompts/get":
		var p GetPromptParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return s.getPrompt(&p)
	}
	return nil, newError(CodeMethodNotFound, "method not found: %s", method)
}

func decodeParams(params json.RawMessage, v any) *Error {
	if len(params) == 0 {
		return newError(CodeInvalidParams, "params are required")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return newError(CodeInvalidParams, "invalid params: %s", err.Error())
	}
	return nil
}

func (s *Server) initialize() *InitializeResult {
	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
			"prompts":   map[string]any{},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}
}

func (s *Server) listTools() *ListToolsResult {
	list := s.dispatcher.Registry().List()
	res := &ListToolsResult{Tools: make([]ToolInfo, 0, len(list))}
	for _, d := range list {
		res.Tools = append(res.Tools, ToolInfo{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.Schema(),
		})
	}
	return res
}

func (s *Server) callTool(ctx context.Context, p *CallToolParams) *CallToolResult {
	req := &tools.CallRequest{
		ID:        "rpc_" + uuid.NewString(),
		Name:      p.Name,
		Arguments: p.Arguments,
	}
	outcome := s.dispatcher.Invoke(ctx, req)
	return &CallToolResult{
		Content: []TextContent{{Type: "text", Text: outcome.ContentAs(s.resultFormat)}},
		IsError: !outcome.Succeeded(),
	}
}

func (s *Server) listResources() *ListResourcesResult {
	resolver := s.dispatcher.Resolver()
	res := &ListResourcesResult{Resources: []ResourceInfo{}}
	if resolver == nil {
		return res
	}
	for _, d := range resolver.List() {
		res.Resources = append(res.Resources, ResourceInfo{
			URI:         d.URI,
			Name:        d.Name,
			Description: d.Description,
			MIMEType:    d.MIMEType,
		})
	}
	return res
}

func (s *Server) listResourceTemplates() *ListResourceTemplatesResult {
	resolver := s.dispatcher.Resolver()
	res := &ListResourceTemplatesResult{ResourceTemplates: []ResourceTemplateInfo{}}
	if resolver == nil {
		return res
	}
	for _, d := range resolver.Templates() {
		res.ResourceTemplates = append(res.ResourceTemplates, ResourceTemplateInfo{
			URITemplate: d.URI,
			Name:        d.Name,
			Description: d.Description,
			MIMEType:    d.MIMEType,
		})
	}
	return res
}

func (s *Server) readResource(ctx context.Context, p *ReadResourceParams) (*ReadResourceResult, *Error) {
	resolver := s.dispatcher.Resolver()
	if resolver == nil {
		return nil, &Error{Code: CodeResourceNotFound, Message: "resource not found", Data: map[string]string{"uri": p.URI}}
	}
	c, err := resolver.Resolve(ctx, p.URI, resources.Bindings(p.Bindings))
	if err != nil {
		switch {
		case errors.Is(err, resources.ErrResourceNotFound):
			return nil, &Error{Code: CodeResourceNotFound, Message: err.Error(), Data: map[string]string{"uri": p.URI}}
		case errors.Is(err, resources.ErrUnboundPlaceholder):
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &ReadResourceResult{
		Contents: []ResourceContents{{URI: c.URI, MIMEType: c.MIMEType, Text: c.Text()}},
	}, nil
}

func (s *Server) listPrompts() *ListPromptsResult {
	list := s.catalog.List()
	res := &ListPromptsResult{Prompts: make([]PromptInfo, 0, len(list))}
	for _, p := range list {
		info := PromptInfo{Name: p.Name, Description: p.Description}
		for _, a := range p.Arguments {
			info.Arguments = append(info.Arguments, PromptArgument(a))
		}
		res.Prompts = append(res.Prompts, info)
	}
	return res
}

func (s *Server) getPrompt(p *GetPromptParams) (*GetPromptResult, *Error) {
	prompt, msgs, err := s.catalog.Get(p.Name, p.Arguments)
	if err != nil {
		return nil, newError(CodeInvalidParams, "%s", err.Error())
	}
	res := &GetPromptResult{Description: prompt.Description}
	for _, m := range msgs {
		role := "user"
		if m.Role == llms.RoleAI {
			role = "assistant"
		}
		res.Messages = append(res.Messages, PromptMessage{
			Role:    role,
			Content: TextContent{Type: "text", Text: m.GetContentText()},
		})
	}
	return res, nil
}
