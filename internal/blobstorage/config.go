package blobstorage

import (
	"fmt"
	"time"
)

// Config describes the S3 compatible bucket holding message objects
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
	Timeout   int    `yaml:"timeout"` // seconds per request, 0 for none
}

// Validate checks the fields needed to reach the bucket
func (c Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket cannot be empty")
	}
	if c.Region == "" {
		return fmt.Errorf("region cannot be empty")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// RequestTimeout returns the per-request timeout
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
