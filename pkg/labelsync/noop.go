package labelsync

import "time"

// NoopObserver is a no-operation implementation of Observer
type NoopObserver struct{}

// NewNoopObserver creates a new no-operation observer
func NewNoopObserver() Observer {
	return NoopObserver{}
}

func (NoopObserver) ProjectCreated(string)                            {}
func (NoopObserver) TasksImported(int64, int)                         {}
func (NoopObserver) DuplicateDeleted(string)                          {}
func (NoopObserver) DeleteFailed(string)                              {}
func (NoopObserver) ReconcileFinished(time.Duration, ReconcileResult) {}
func (NoopObserver) ImageUploaded(ImageMetadata)                      {}
