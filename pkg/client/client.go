package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	apiv1 "github.com/mundrapranay/silhouette-obfuscator/api/v1"
	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

// Client provides a Go client library for releasing obfuscated counts
// through a silhouette-obfuscator cluster.
type Client struct {
	conn    *grpc.ClientConn
	service apiv1.ObfuscationServiceClient
}

// NewClient creates a new client connection to an obfuscator server.
func NewClient(serverAddr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(serverAddr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	return &Client{
		conn:    conn,
		service: apiv1.NewObfuscationServiceClient(conn),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// CreateSession starts a session bound to cfg and returns its id.
func (c *Client) CreateSession(ctx context.Context, cfg obfuscate.Config) (string, error) {
	req, err := apiv1.NewCreateSessionRequest(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	resp, err := c.service.CreateSession(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	return apiv1.SessionID(resp)
}

// DropSession forgets a session and all of its cached answers.
func (c *Client) DropSession(ctx context.Context, sessionID string) error {
	if _, err := c.service.DropSession(ctx, apiv1.NewSessionRequest(sessionID)); err != nil {
		return fmt.Errorf("failed to drop session: %w", err)
	}
	return nil
}

// Obfuscate returns the obfuscated form of value in bin.
func (c *Client) Obfuscate(ctx context.Context, sessionID string, value uint64, bin obfuscate.Bin) (uint64, error) {
	resp, err := c.service.Obfuscate(ctx, apiv1.NewObfuscateRequest(sessionID, obfuscate.Key{Value: value, Bin: bin}))
	if err != nil {
		return 0, fmt.Errorf("failed to obfuscate value: %w", err)
	}
	return apiv1.ParseValueResponse(resp)
}

// ObfuscateBatch obfuscates keys in order and returns one result per key.
func (c *Client) ObfuscateBatch(ctx context.Context, sessionID string, keys []obfuscate.Key) ([]uint64, error) {
	resp, err := c.service.ObfuscateBatch(ctx, apiv1.NewBatchRequest(sessionID, keys))
	if err != nil {
		return nil, fmt.Errorf("failed to obfuscate batch: %w", err)
	}

	values, err := apiv1.ParseBatchResponse(resp)
	if err != nil {
		return nil, err
	}
	if len(values) != len(keys) {
		return nil, fmt.Errorf("server returned %d values for %d keys", len(values), len(keys))
	}
	return values, nil
}

// Guarantee returns the privacy guarantee of a session.
func (c *Client) Guarantee(ctx context.Context, sessionID string) (obfuscate.Guarantee, error) {
	resp, err := c.service.GetGuarantee(ctx, apiv1.NewSessionRequest(sessionID))
	if err != nil {
		return obfuscate.Guarantee{}, fmt.Errorf("failed to get guarantee: %w", err)
	}
	return apiv1.ParseGuaranteeResponse(resp)
}
