package storage

import (
	"context"
	"fmt"
)

type Config struct {
	Driver      string // none|local|s3
	LocalDir    string
	LocalPrefix string
	S3          S3Config
}

type FactoryResult struct {
	Driver  string
	Storage Storage
}

func FromConfig(ctx context.Context, cfg Config) (FactoryResult, error) {
	switch cfg.Driver {
	case "", "none":
		return FactoryResult{Driver: "none", Storage: Nop{}}, nil

	case "local":
		dir := cfg.LocalDir
		if dir == "" {
			dir = "./storage/archive"
		}
		return FactoryResult{Driver: "local", Storage: NewLocal(dir, cfg.LocalPrefix)}, nil

	case "s3":
		if cfg.S3.Region == "" || cfg.S3.Bucket == "" {
			return FactoryResult{}, fmt.Errorf("S3 config missing: ARCHIVE_S3_REGION, ARCHIVE_S3_BUCKET required")
		}
		s, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return FactoryResult{}, err
		}
		return FactoryResult{Driver: "s3", Storage: s}, nil

	default:
		return FactoryResult{}, fmt.Errorf("unknown archive driver: %s", cfg.Driver)
	}
}
