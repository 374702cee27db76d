package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

// #region client-struct
// Client wraps a connection to MoodService.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to a moodd server without transport security.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn uses an existing connection. Close is then a no-op.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region calls
func (c *Client) call(ctx context.Context, method string, req, reply any) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return err
	}
	if err := decode(out, reply); err != nil {
		return fmt.Errorf("decode %s reply: %w", method, err)
	}
	return nil
}

// GetState fetches the current state and recovery estimates for userID.
func (c *Client) GetState(ctx context.Context, userID string) (StateReply, error) {
	var reply StateReply
	if err := c.call(ctx, "GetState", UserRequest{UserID: userID}, &reply); err != nil {
		return StateReply{}, fmt.Errorf("get state rpc: %w", err)
	}
	return reply, nil
}

// ProcessTurn runs one turn on the server.
func (c *Client) ProcessTurn(ctx context.Context, req TurnRequest) (TurnReply, error) {
	var reply TurnReply
	if err := c.call(ctx, "ProcessTurn", req, &reply); err != nil {
		return TurnReply{}, fmt.Errorf("process turn rpc: %w", err)
	}
	return reply, nil
}

// History lists snapshots newest first.
func (c *Client) History(ctx context.Context, req HistoryRequest) ([]mood.EmotionalState, error) {
	var reply HistoryReply
	if err := c.call(ctx, "History", req, &reply); err != nil {
		return nil, fmt.Errorf("history rpc: %w", err)
	}
	return reply.States, nil
}

// Decay runs a decay sweep. No user ids sweeps every user in conflict.
func (c *Client) Decay(ctx context.Context, userIDs []string) ([]DecayView, error) {
	var reply DecayReply
	if err := c.call(ctx, "Decay", DecayRequest{UserIDs: userIDs}, &reply); err != nil {
		return nil, fmt.Errorf("decay rpc: %w", err)
	}
	return reply.Outcomes, nil
}

// DeleteUser removes every record for userID and returns how many were removed.
func (c *Client) DeleteUser(ctx context.Context, userID string) (int, error) {
	var reply DeleteReply
	if err := c.call(ctx, "DeleteUser", UserRequest{UserID: userID}, &reply); err != nil {
		return 0, fmt.Errorf("delete user rpc: %w", err)
	}
	return reply.Deleted, nil
}

// Health asks the standard health service about MoodService.
func (c *Client) Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(c.cc).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health rpc: %w", err)
	}
	return resp.GetStatus(), nil
}

// #endregion calls
