// Copyright 2024 The PrivatePay Authors
// This file is part of PrivatePay.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/AmaanSayyad/PrivatePay/stealth"
)

// fileSource reads announcements from a JSON array on disk, as exported by
// an indexer. The file is re-read on every call so it may grow between polls.
type fileSource struct {
	path string
}

func newFileSource(path string) *fileSource {
	return &fileSource{path: path}
}

func (s *fileSource) load() ([]*stealth.Announcement, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var anns []*stealth.Announcement
	if err := json.Unmarshal(content, &anns); err != nil {
		return nil, fmt.Errorf("invalid announcement file %s: %w", s.path, err)
	}
	return anns, nil
}

// Announcements returns the announcements with block number in [from, to]
func (s *fileSource) Announcements(ctx context.Context, from, to uint64) ([]*stealth.Announcement, error) {
	anns, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []*stealth.Announcement
	for _, a := range anns {
		if a.BlockNumber >= from && a.BlockNumber <= to {
			out = append(out, a)
		}
	}
	return out, nil
}

// Head returns the highest block number in the file
func (s *fileSource) Head(ctx context.Context) (uint64, error) {
	anns, err := s.load()
	if err != nil {
		return 0, err
	}
	var head uint64
	for _, a := range anns {
		if a.BlockNumber > head {
			head = a.BlockNumber
		}
	}
	return head, nil
}
