// Package rpc exposes the registry, resolver, dependency checker, rule
// evaluator and planner to host tools over JSON-RPC 2.0.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"

	"github.com/kingrea/archspec/internal/facts"
	"github.com/kingrea/archspec/internal/registry"
	"github.com/kingrea/archspec/internal/rules"
)

// Application error codes. The JSON-RPC reserved range is left to the
// protocol errors.
const (
	CodeSpecNotFound      int64 = -32001
	CodeInvalidOption     int64 = -32002
	CodeUnresolvedBinding int64 = -32003
	CodeInvalidSpec       int64 = -32004
	CodeNoTemplate        int64 = -32005
	CodeInvalidTask       int64 = -32006
)

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Server answers archspec requests against a registry.
type Server struct {
	reg     *registry.Registry
	table   *rules.Table
	scan    []facts.ScanOption
	logger  *zap.Logger
	methods map[string]handlerFunc
}

// Option configures a Server.
type Option func(*Server)

// WithRules replaces the built-in predicate table.
func WithRules(t *rules.Table) Option {
	return func(s *Server) {
		if t != nil {
			s.table = t
		}
	}
}

// WithScanOptions sets the options facts.scan passes to the scanner.
func WithScanOptions(opts ...facts.ScanOption) Option {
	return func(s *Server) { s.scan = append(s.scan, opts...) }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer builds a server over reg.
func NewServer(reg *registry.Registry, opts ...Option) *Server {
	s := &Server{reg: reg, table: rules.Builtin(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.methods = map[string]handlerFunc{
		"spec.list":           s.specList,
		"spec.get":            s.specGet,
		"spec.validateOption": s.specValidateOption,
		"spec.resolveOptions": s.specResolveOptions,
		"template.resolve":    s.templateResolve,
		"template.render":     s.templateRender,
		"deps.checkImport":    s.depsCheckImport,
		"deps.checkGraph":     s.depsCheckGraph,
		"facts.scan":          s.factsScan,
		"rules.evaluate":      s.rulesEvaluate,
		"plan.build":          s.planBuild,
	}
	return s
}

// Methods returns the served method names.
func (s *Server) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	return sortStrings(names)
}

// Serve handles requests on rwc until the peer disconnects or ctx is
// cancelled. Messages use Content-Length framing.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle))
	s.logger.Info("json-rpc server started", zap.Int("methods", len(s.methods)))
	select {
	case <-ctx.Done():
		conn.Close()
		<-conn.DisconnectNotify()
		return ctx.Err()
	case <-conn.DisconnectNotify():
		s.logger.Info("json-rpc peer disconnected")
		return nil
	}
}

func (s *Server) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	method, ok := s.methods[req.Method]
	if !ok {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: fmt.Sprintf("rpc: unknown method %s", req.Method)}
	}
	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}
	result, err := method(ctx, params)
	if err != nil {
		s.logger.Debug("request failed", zap.String("method", req.Method), zap.Error(err))
		return nil, toRPCError(err)
	}
	return result, nil
}

// Call invokes a method directly, bypassing the transport. It returns the
// same result and *jsonrpc2.Error a remote caller would see.
func (s *Server) Call(ctx context.Context, method string, params any) (any, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode params: %w", err)
	}
	msg := json.RawMessage(raw)
	return s.handle(ctx, nil, &jsonrpc2.Request{Method: method, Params: &msg})
}

type invalidParamsError struct{ err error }

func (e invalidParamsError) Error() string { return "rpc: invalid params: " + e.err.Error() }
func (e invalidParamsError) Unwrap() error { return e.err }

func decode(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return invalidParamsError{errors.New("params are required")}
	}
	if err := json.Unmarshal(params, v); err != nil {
		return invalidParamsError{err}
	}
	return nil
}
