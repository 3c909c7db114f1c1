package notify

import (
	"sync"

	"github.com/google/uuid"
)

// pendingRequest buffers a /generate conversation until ratio and
// resolution are both chosen.
type pendingRequest struct {
	ID         string
	ChatID     int64
	Prompt     string
	Ratio      string
	Resolution string
}

// pendingRequests is an in-memory buffer of unfinished bot conversations.
// Entries are lost on restart, which is acceptable for an interactive flow.
type pendingRequests struct {
	mu   sync.Mutex
	byID map[string]*pendingRequest
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{byID: make(map[string]*pendingRequest)}
}

// Add opens a new pending request and returns it.
func (p *pendingRequests) Add(chatID int64, prompt string) *pendingRequest {
	req := &pendingRequest{
		ID:     uuid.NewString(),
		ChatID: chatID,
		Prompt: prompt,
	}
	p.mu.Lock()
	p.byID[req.ID] = req
	p.mu.Unlock()
	return req
}

// SetRatio records the chosen ratio. Returns false when the id is unknown.
func (p *pendingRequests) SetRatio(id, ratio string) (*pendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	req.Ratio = ratio
	return req, true
}

// Consume records the resolution, removes the request, and returns it.
func (p *pendingRequests) Consume(id, resolution string) (*pendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	req.Resolution = resolution
	delete(p.byID, id)
	return req, true
}

// Cancel discards the request. Unknown ids are a no-op.
func (p *pendingRequests) Cancel(id string) {
	p.mu.Lock()
	delete(p.byID, id)
	p.mu.Unlock()
}

func (p *pendingRequests) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}
