package r2client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	full := Config{Endpoint: "https://acc.r2.cloudflarestorage.com", AccessKeyID: "id", SecretKey: "secret", BucketName: "b"}
	if err := full.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no endpoint", func(c *Config) { c.Endpoint = "" }, "r2client: missing endpoint"},
		{"no bucket", func(c *Config) { c.BucketName = "" }, "r2client: missing bucket"},
		{"no credentials", func(c *Config) { c.AccessKeyID, c.SecretKey = "", "" }, "r2client: missing access key id, secret key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := full
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || err.Error() != tt.want {
				t.Errorf("Validate() = %v, want %q", err, tt.want)
			}
			if _, err := New(context.Background(), cfg); err == nil {
				t.Error("New() should reject incomplete config")
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	c, err := New(context.Background(), Config{
		Endpoint: "https://acc.r2.cloudflarestorage.com", AccessKeyID: "id", SecretKey: "secret", BucketName: "docs",
	})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if c.bucket != "docs" {
		t.Errorf("bucket = %q", c.bucket)
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", &types.NoSuchKey{}, true},
		{"wrapped not found", fmt.Errorf("get: %w", &types.NotFound{}), true},
		{"generic api 404", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := isNotFound(tt.err); got != tt.want {
			t.Errorf("%s: isNotFound() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsPreconditionFailed(t *testing.T) {
	t.Parallel()
	if !isPreconditionFailed(&smithy.GenericAPIError{Code: "PreconditionFailed"}) {
		t.Error("api error code should match")
	}
	if !isPreconditionFailed(errors.New("operation error S3: PutObject, PreconditionFailed")) {
		t.Error("message should match")
	}
	if isPreconditionFailed(errors.New("timeout")) {
		t.Error("unrelated error should not match")
	}
}

func TestEtagOf(t *testing.T) {
	t.Parallel()
	quoted := `"abc"`
	if got := etagOf(&quoted); got != "abc" {
		t.Errorf("etagOf() = %q", got)
	}
	if got := etagOf(nil); got != "" {
		t.Errorf("etagOf(nil) = %q", got)
	}
}
