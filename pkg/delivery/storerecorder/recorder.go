// Package storerecorder persists communication history through the store.
package storerecorder

import (
	"context"

	"github.com/google/uuid"

	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/store"
)

// Recorder writes CommunicationRecords to the store. Recording is
// best-effort by contract: the processor logs and continues when a write
// fails.
type Recorder struct {
	store store.CommunicationStore
}

func NewRecorder(st store.CommunicationStore) *Recorder {
	return &Recorder{store: st}
}

func (r *Recorder) RecordCommunication(ctx context.Context, record *models.CommunicationRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	return r.store.SaveCommunication(ctx, record)
}
