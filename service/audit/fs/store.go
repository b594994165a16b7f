// Package fs provides a durable audit store on top of viant/afs: one JSON
// file per entry, named by zero-padded sequence number so listing order is
// log order.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/corpcraft/gatekeeper/service/audit"
)

// Store persists audit entries under an afs location.
type Store struct {
	fs      afs.Service
	baseURL string
}

// New creates the store directory when absent and returns the store.
func New(fileService afs.Service, baseURL string) (*Store, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("audit store base URL cannot be empty")
	}
	ctx := context.Background()
	if exists, _ := fileService.Exists(ctx, baseURL); !exists {
		if err := fileService.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create audit store %s: %w", baseURL, err)
		}
	}
	return &Store{fs: fileService, baseURL: baseURL}, nil
}

// Append writes the entry as a new file. Existing files are never rewritten.
func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry %d: %w", entry.Seq, err)
	}
	location := url.Join(s.baseURL, fmt.Sprintf("%012d.json", entry.Seq))
	if exists, _ := s.fs.Exists(ctx, location); exists {
		return fmt.Errorf("audit entry %d already exists", entry.Seq)
	}
	return s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data))
}

// List loads all entries in sequence order.
func (s *Store) List(ctx context.Context) ([]*audit.Entry, error) {
	objects, err := s.fs.List(ctx, s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	var names []string
	urls := make(map[string]string)
	for _, obj := range objects {
		if obj.IsDir() || !strings.HasSuffix(obj.Name(), ".json") {
			continue
		}
		names = append(names, obj.Name())
		urls[obj.Name()] = obj.URL()
	}
	sort.Strings(names)

	ret := make([]*audit.Entry, 0, len(names))
	for _, name := range names {
		data, err := s.fs.DownloadWithURL(ctx, urls[name])
		if err != nil {
			return nil, fmt.Errorf("failed to read audit entry %s: %w", name, err)
		}
		entry := &audit.Entry{}
		if err := json.Unmarshal(data, entry); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry %s: %w", name, err)
		}
		ret = append(ret, entry)
	}
	return ret, nil
}

var _ audit.Store = (*Store)(nil)
