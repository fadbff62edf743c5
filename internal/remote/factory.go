package remote

import (
	"context"
	"fmt"
	"time"

	"qcsync/internal/config"
	"qcsync/internal/qc"
)

// NewEndpointFromConfig creates an Endpoint based on the remote config type.
func NewEndpointFromConfig(ctx context.Context, cfg config.RemoteConfig, deviceID string, timeout time.Duration) (qc.Endpoint, error) {
	switch cfg.Type {
	case "http", "":
		if cfg.URL == "" {
			return nil, fmt.Errorf("http remote requires url to be set")
		}
		return NewHTTPEndpoint(cfg.URL, deviceID, timeout, nil), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 remote requires s3_bucket to be set")
		}
		ep, err := NewS3EndpointFromConfig(ctx, cfg, deviceID)
		if err != nil {
			return nil, err
		}
		return ep, nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem remote requires fs_root to be set")
		}
		ep, err := NewFileSystemEndpoint(cfg.FSRoot, deviceID)
		if err != nil {
			return nil, err
		}
		return ep, nil
	case "memory":
		return NewMemoryEndpoint(), nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
