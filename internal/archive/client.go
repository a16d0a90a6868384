package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/revealtogether/reveal-server/internal/lifecycle"
)

// serviceMethod is the fully-qualified gRPC method the external archive
// service exposes. The request/response types are the protobuf runtime's
// own pre-generated wrapper messages (wrapperspb), so no generated
// .pb.go stub is needed for this thin byte-passing client, adapted from
// the teacher's agent.GrpcClient connection-construction shape.
const serviceMethod = "/reveal.archive.ArchiveService/Archive"

// GrpcClientConfig mirrors the teacher's GrpcClientConfig shape.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns sane defaults for the archive client.
func DefaultGrpcClientConfig(addr string) GrpcClientConfig {
	return GrpcClientConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   10 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GrpcClient delivers finalized session documents to an external archive
// service over gRPC.
type GrpcClient struct {
	conn *grpc.ClientConn
	cfg  GrpcClientConfig
}

// NewGrpcClient dials addr without blocking for the connection to become
// ready (grpc.NewClient semantics); readiness is observed lazily on first
// call.
func NewGrpcClient(cfg GrpcClientConfig) (*GrpcClient, error) {
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
		return nil, fmt.Errorf("failed to connect to archive service at %s: %w", cfg.Address, err)
	}

	return &GrpcClient{conn: conn, cfg: cfg}, nil
}

// Deliver sends doc to the archive service and waits for acknowledgment.
func (c *GrpcClient) Deliver(ctx context.Context, doc lifecycle.ArchiveDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode archive document for session %s: %w", doc.SessionID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req := wrapperspb.Bytes(body)
	var resp wrapperspb.StringValue
	if err := c.conn.Invoke(ctx, serviceMethod, req, &resp); err != nil {
		return fmt.Errorf("deliver archive document for session %s: %w", doc.SessionID, err)
	}

	slog.Debug("archive: delivered document", "session_id", doc.SessionID, "ack", resp.GetValue())
	return nil
}

// Close releases the underlying connection.
func (c *GrpcClient) Close() error {
	return c.conn.Close()
}
