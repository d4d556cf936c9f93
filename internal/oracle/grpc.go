package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// Unary methods of the remote oracle service. Payloads are google.protobuf.Struct.
const (
	grpcChatMethod  = "/draft.oracle.v1.Oracle/Chat"
	grpcEmbedMethod = "/draft.oracle.v1.Oracle/Embed"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errMalformedReply           = errors.New("malformed oracle reply")
)

// GRPCConfig holds connection settings for the gRPC backend.
type GRPCConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGRPCConfig returns default connection settings for addr.
func DefaultGRPCConfig(addr string) GRPCConfig {
	return GRPCConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GRPC delegates scoring to a remote oracle service.
type GRPC struct {
	conn       *grpc.ClientConn
	addr       string
	model      string
	embedModel string
	logger     *slog.Logger
}

// NewGRPC connects to the oracle service at addr and waits until it is ready.
func NewGRPC(addr, model, embedModel string, logger *slog.Logger) (*GRPC, error) {
	return NewGRPCWithConfig(DefaultGRPCConfig(addr), model, embedModel, logger)
}

// NewGRPCWithConfig is NewGRPC with explicit connection settings.
func NewGRPCWithConfig(cfg GRPCConfig, model, embedModel string, logger *slog.Logger) (*GRPC, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("create oracle client for %s: %w", cfg.Address, err)
	}

	// Fail fast on a bad endpoint instead of degrading silently on every call.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("oracle at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to oracle service", "address", cfg.Address)

	return &GRPC{
		conn:       conn,
		addr:       cfg.Address,
		model:      model,
		embedModel: embedModel,
		logger:     logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Name returns the backend name.
func (g *GRPC) Name() string {
	return "grpc:" + g.addr
}

// Close closes the gRPC connection.
func (g *GRPC) Close() error {
	if g.conn == nil {
		return nil
	}
	if err := g.conn.Close(); err != nil {
		return fmt.Errorf("close gRPC connection: %w", err)
	}
	return nil
}

// Chat sends {prompt, schema, model} and expects {result: {...}}.
func (g *GRPC) Chat(ctx context.Context, prompt string, schema Schema) (map[string]any, error) {
	req, err := structpb.NewStruct(map[string]any{
		"prompt": prompt,
		"schema": map[string]any(schema),
		"model":  g.model,
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, grpcChatMethod, req, resp); err != nil {
		return nil, fmt.Errorf("grpc chat: %w", err)
	}

	result := resp.GetFields()["result"].GetStructValue()
	if result == nil {
		return nil, fmt.Errorf("grpc chat: %w: missing result", errMalformedReply)
	}
	return result.AsMap(), nil
}

// Embed sends {text, model} and expects {embedding: [...]}.
func (g *GRPC) Embed(ctx context.Context, text string) ([]float32, error) {
	req, err := structpb.NewStruct(map[string]any{
		"text":  text,
		"model": g.embedModel,
	})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, grpcEmbedMethod, req, resp); err != nil {
		return nil, fmt.Errorf("grpc embed: %w", err)
	}

	list := resp.GetFields()["embedding"].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("grpc embed: %w: missing embedding", errMalformedReply)
	}
	vec := make([]float32, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		vec = append(vec, float32(v.GetNumberValue()))
	}
	return vec, nil
}
