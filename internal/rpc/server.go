package rpc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/moodengine/internal/compute"
	"github.com/danielpatrickdp/moodengine/internal/conflict"
	"github.com/danielpatrickdp/moodengine/internal/mood"
	"github.com/danielpatrickdp/moodengine/internal/pipeline"
	"github.com/danielpatrickdp/moodengine/internal/recovery"
	"github.com/danielpatrickdp/moodengine/internal/state"
)

var errBadRequest = errors.New("bad request")

// #region server-struct
// Server implements MoodServer on top of a pipeline.
type Server struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

var _ MoodServer = (*Server)(nil)

// NewServer wraps p. A nil logger discards output.
func NewServer(p *pipeline.Pipeline, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{pipeline: p, logger: logger}
}

// NewGRPCServer builds a grpc.Server with MoodService, the standard health
// service and request logging. The health server reports SERVING for both
// the overall server and MoodService.
func NewGRPCServer(p *pipeline.Pipeline, logger *zap.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	srv := NewServer(p, logger)
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryLogger(srv.logger))}, opts...)
	s := grpc.NewServer(opts...)
	Register(s, srv)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s, hs
}

// UnaryLogger logs each call with its method, status code and duration.
func UnaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc", fields...)
		}
		return resp, err
	}
}

// #endregion server-struct

// #region handlers
func (s *Server) GetState(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req UserRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	cur, err := s.pipeline.Store().GetCurrent(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	if cur == nil {
		return nil, status.Errorf(codes.NotFound, "no state for user %q", req.UserID)
	}

	reply := StateReply{State: *cur}
	if cur.ConflictState.Active() {
		reply.Estimates = make(map[string]string, len(recovery.Approaches))
		for _, a := range recovery.Approaches {
			d := s.pipeline.Recovery().EstimatedRecoveryTime(*cur, a)
			if d == recovery.Forever {
				reply.Estimates[string(a)] = "never"
			} else {
				reply.Estimates[string(a)] = d.Round(time.Minute).String()
			}
		}
	}
	return encode(reply)
}

func (s *Server) ProcessTurn(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req TurnRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	input, err := req.toInput()
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := s.pipeline.ProcessTurn(ctx, input)
	if err != nil {
		s.logger.Warn("process turn failed", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, toStatus(err)
	}
	return encode(turnReply(out))
}

func (s *Server) History(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req HistoryRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	st := s.pipeline.Store()
	var (
		states []mood.EmotionalState
		err    error
	)
	if req.ConflictOnly {
		states, err = st.ConflictHistory(ctx, req.UserID, req.Days)
		if err == nil && req.Limit > 0 && len(states) > req.Limit {
			states = states[:req.Limit]
		}
	} else {
		states, err = st.History(ctx, req.UserID, req.Days, req.Limit)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	if states == nil {
		states = []mood.EmotionalState{}
	}
	return encode(HistoryReply{States: states})
}

func (s *Server) Decay(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req DecayRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	outs, err := s.pipeline.DecaySweep(ctx, req.UserIDs)
	if err != nil {
		return nil, toStatus(err)
	}
	reply := DecayReply{Outcomes: make([]DecayView, 0, len(outs))}
	for _, o := range outs {
		reply.Outcomes = append(reply.Outcomes, DecayView{
			UserID: o.UserID,
			From:   string(o.From),
			To:     string(o.To),
			Saved:  o.Saved,
			Result: o.Result,
		})
	}
	return encode(reply)
}

func (s *Server) DeleteUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req UserRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	n, err := s.pipeline.Store().DeleteUser(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info("user deleted", zap.String("user_id", req.UserID), zap.Int("records", n))
	return encode(DeleteReply{Deleted: n})
}

// #endregion handlers

// #region errors
// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, state.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, mood.ErrOutOfRange),
		errors.Is(err, mood.ErrNegativeCount),
		errors.Is(err, mood.ErrInvalidConflictState),
		errors.Is(err, mood.ErrNotNumeric),
		errors.Is(err, recovery.ErrUnknownApproach),
		errors.Is(err, compute.ErrUnknownTone),
		errors.Is(err, conflict.ErrUnknownAttachment):
		code = codes.InvalidArgument
	case errors.Is(err, conflict.ErrInvalidTransition),
		errors.Is(err, mood.ErrConflictCouplingBroken):
		code = codes.FailedPrecondition
	}
	return status.Error(code, err.Error())
}

// #endregion errors
