package grpcapi

import (
	"context"
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls the inspection service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a Client for addr. tlsConfig may be nil to connect without
// TLS. Extra dial options are applied after the transport credentials.
func Dial(addr string, tlsConfig *tls.Config, opts ...grpc.DialOption) (*Client, error) {
	creds := insecure.NewCredentials()
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	}

	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) ListRoutes(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)

	if err := c.conn.Invoke(ctx, fullMethod(methodListRoutes), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Client) ListJobs(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)

	if err := c.conn.Invoke(ctx, fullMethod(methodListJobs), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Client) GetJob(ctx context.Context, id uint64) (*structpb.Struct, error) {
	out := new(structpb.Struct)

	if err := c.conn.Invoke(ctx, fullMethod(methodGetJob), wrapperspb.UInt64(id), out); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Client) StopJob(ctx context.Context, id uint64) error {
	return c.conn.Invoke(ctx, fullMethod(methodStopJob), wrapperspb.UInt64(id), new(emptypb.Empty))
}

// Healthy reports whether the inspection service is serving.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(
		ctx,
		&healthpb.HealthCheckRequest{Service: ServiceName},
	)
	if err != nil {
		return false, err
	}

	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}
