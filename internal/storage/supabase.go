package storage

import (
	"bytes"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseStore uploads recordings into a Supabase storage bucket.
type SupabaseStore struct {
	client *supabase.Client
	bucket string
}

func NewSupabaseStore(url, serviceKey, bucket string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseStore{client: client, bucket: bucket}, nil
}

func (s *SupabaseStore) Save(name, contentType string, data []byte) (int, error) {
	_, err := s.client.Storage.UploadFile(s.bucket, name, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("upload to supabase: %w", err)
	}
	return len(data), nil
}
