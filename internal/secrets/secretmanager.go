package secrets

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// SecretManagerSource reads secrets through the Secret Manager API using
// application default credentials.
type SecretManagerSource struct {
	client  accessor
	project string
}

func NewSecretManagerSource(ctx context.Context, project string) (*SecretManagerSource, error) {
	if project == "" {
		return nil, fmt.Errorf("secret manager requires a GCP project")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &SecretManagerSource{client: client, project: project}, nil
}

func (s *SecretManagerSource) Lookup(ctx context.Context, key string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.project, SecretID(key))

	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("failed to access secret %s: %w", SecretID(key), err)
	}
	return string(result.GetPayload().GetData()), nil
}

func (s *SecretManagerSource) Close() error {
	return s.client.Close()
}
