package azureblob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/hyeonsoft/billscan/internal/core/domain"
)

// Storage stores bill images in an Azure Blob Storage container.
type Storage struct {
	client    *azblob.Client
	container string
}

func New(connectionString, container string) (*Storage, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure blob client: %w", err)
	}
	return &Storage{client: client, container: container}, nil
}

// EnsureContainer creates the container if it does not exist yet.
func (s *Storage) EnsureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", s.container, err)
	}
	return nil
}

func (s *Storage) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	}
	if _, err := s.client.UploadStream(ctx, s.container, key, data, opts); err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "download blob", fmt.Errorf("key %s", key))
		}
		return nil, fmt.Errorf("download blob %s: %w", key, err)
	}
	return resp.Body, nil
}

func validateKey(key string) error {
	if key == "" {
		return domain.WrapError(domain.ErrInvalidInput, "blob key", fmt.Errorf("empty key"))
	}
	if strings.Contains(key, "..") {
		return domain.WrapError(domain.ErrInvalidInput, "blob key", fmt.Errorf("key %q contains a parent path segment", key))
	}
	return nil
}
