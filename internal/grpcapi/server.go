package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ainventory/ainventory-server/internal/auth"
	"github.com/ainventory/ainventory-server/internal/tools"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToolServer implements ToolServiceServer over a tools.Registry.
type ToolServer struct {
	tools  *tools.Registry
	logger *zap.Logger
}

// NewToolServer creates a ToolServer.
func NewToolServer(reg *tools.Registry, logger *zap.Logger) *ToolServer {
	return &ToolServer{tools: reg, logger: logger}
}

// Call implements ToolService.Call.
func (s *ToolServer) Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()

	name, _ := fields["name"].(string)
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	var args map[string]any
	switch v := fields["arguments"].(type) {
	case nil:
	case map[string]any:
		args = v
	default:
		return nil, status.Error(codes.InvalidArgument, "arguments must be an object")
	}

	result, err := s.tools.Call(ctx, name, args, tools.SourceGRPC)
	if err != nil {
		return nil, toolStatus(err)
	}

	out, err := toStruct(map[string]any{"result": result})
	if err != nil {
		s.logger.Error("grpc result encoding failed", zap.String("tool", name), zap.Error(err))
		return nil, status.Error(codes.Internal, "result encoding failed")
	}
	return out, nil
}

// List implements ToolService.List.
func (s *ToolServer) List(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	list := s.tools.List()
	entries := make([]any, 0, len(list))
	for _, t := range list {
		entries = append(entries, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"risk_tier":    t.RiskTier,
			"read_only":    t.ReadOnly(),
			"input_schema": t.InputSchema,
		})
	}

	out, err := toStruct(map[string]any{"tools": entries})
	if err != nil {
		return nil, status.Error(codes.Internal, "tool listing encoding failed")
	}
	return out, nil
}

func toolStatus(err error) error {
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, tools.ErrInvalidArguments):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, tools.ErrNotImplemented):
		return status.Error(codes.Unimplemented, err.Error())
	default:
		return status.Error(codes.Internal, "tool call failed")
	}
}

// toStruct converts v to a Struct through its JSON form. Numbers become
// doubles, as google.protobuf.Value has no integer kind.
func toStruct(v map[string]any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("toStruct marshal: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("toStruct unmarshal: %w", err)
	}
	return structpb.NewStruct(generic)
}

// UnaryInterceptor authenticates calls (when authn is non-nil), attaches the
// x-request-id metadata as the tool call request ID and logs each call.
// Health checks bypass authentication.
func UnaryInterceptor(authn auth.Authenticator, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		if authn != nil && !strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			key, err := auth.APIKeyFromMetadata(ctx)
			if err != nil {
				return nil, status.Errorf(codes.Unauthenticated, "authentication failed: %v", err)
			}
			client, err := authn.Authenticate(ctx, key)
			if err != nil {
				if errors.Is(err, auth.ErrAuthUnavailable) {
					return nil, status.Error(codes.Unavailable, "authentication unavailable")
				}
				return nil, status.Errorf(codes.Unauthenticated, "authentication failed: %v", err)
			}
			ctx = auth.WithClient(ctx, client)
		}

		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-request-id"); len(ids) > 0 && ids[0] != "" {
				ctx = tools.WithRequestID(ctx, ids[0])
			}
		}

		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// NewServer builds a gRPC server with ToolService and the health service
// registered. The health status of ServiceName starts as SERVING.
func NewServer(reg *tools.Registry, authn auth.Authenticator, logger *zap.Logger) (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 10 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.MaxSendMsgSize(4*1024*1024),
		grpc.UnaryInterceptor(UnaryInterceptor(authn, logger)),
	)

	RegisterToolServiceServer(grpcServer, NewToolServer(reg, logger))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return grpcServer, healthServer
}
