package assignment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileResolver serves campaign sequences from a JSON file mapping campaign
// ID to an ordered list of template references. The file is loaded once at
// construction.
type FileResolver struct {
	mu        sync.RWMutex
	sequences map[string][]TemplateRef
}

func NewFileResolver(path string) (*FileResolver, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read campaigns file: %w", err)
	}

	var sequences map[string][]TemplateRef
	if err := json.Unmarshal(raw, &sequences); err != nil {
		return nil, fmt.Errorf("failed to parse campaigns file: %w", err)
	}

	for campaignID, refs := range sequences {
		for i, ref := range refs {
			if ref.TemplateID == "" {
				return nil, fmt.Errorf("campaign %s step %d: missing template_id", campaignID, i)
			}

			if err := ref.Channel.Validate(); err != nil {
				return nil, fmt.Errorf("campaign %s step %d: %w", campaignID, i, err)
			}
		}
	}

	return &FileResolver{sequences: sequences}, nil
}

func (r *FileResolver) ResolveSequence(_ context.Context, campaignID string) ([]TemplateRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs, ok := r.sequences[campaignID]
	if !ok {
		return nil, fmt.Errorf("no sequence configured for campaign %s", campaignID)
	}

	out := make([]TemplateRef, len(refs))
	copy(out, refs)

	return out, nil
}
