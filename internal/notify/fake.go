package notify

import (
	"context"
	"sync"
)

// Sent is one recorded delivery.
type Sent struct {
	Recipient string
	Message   string
}

// Fake records deliveries and can fail selected recipients.
type Fake struct {
	// FailFor lists recipients whose sends return an error.
	FailFor map[string]error

	mu     sync.Mutex
	sent   []Sent
	Closed bool
}

// Send records the delivery, or fails if the recipient is listed in FailFor.
func (f *Fake) Send(ctx context.Context, recipient, message string) error {
	if err, ok := f.FailFor[recipient]; ok {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, Sent{Recipient: recipient, Message: message})
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

// Messages returns a copy of everything recorded so far.
func (f *Fake) Messages() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}
