package harmony

import (
	"context"
	"errors"
	"sync"
)

// Fake is a test double that returns a fixed catalog and scripted current
// activity samples.
type Fake struct {
	// Catalog is returned by Activities.
	Catalog []Activity

	// Samples contains scripted current-activity ids. Each call to
	// CurrentActivityID consumes the next sample; when exhausted the last
	// sample repeats.
	Samples []string

	// ActivitiesErr, SampleErr, and TurnOffErr are returned by the matching
	// operations when set.
	ActivitiesErr error
	SampleErr     error
	TurnOffErr    error

	mu           sync.Mutex
	index        int
	TurnOffCalls int
	Closed       bool
}

// NewFake creates a fake hub with the given catalog and sample script.
func NewFake(catalog []Activity, samples ...string) *Fake {
	return &Fake{Catalog: catalog, Samples: samples}
}

// Activities returns the fixed catalog.
func (f *Fake) Activities(ctx context.Context) ([]Activity, error) {
	if f.ActivitiesErr != nil {
		return nil, f.ActivitiesErr
	}
	return f.Catalog, nil
}

// CurrentActivityID returns the next scripted sample.
func (f *Fake) CurrentActivityID(ctx context.Context) (string, error) {
	if f.SampleErr != nil {
		return "", f.SampleErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.Samples) == 0 {
		return "", errors.New("no samples configured")
	}
	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// TurnOff records the power-off call.
func (f *Fake) TurnOff(ctx context.Context) error {
	if f.TurnOffErr != nil {
		return f.TurnOffErr
	}
	f.mu.Lock()
	f.TurnOffCalls++
	f.mu.Unlock()
	return nil
}

// Close marks the fake as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
