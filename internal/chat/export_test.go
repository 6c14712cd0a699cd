package chat

import "github.com/cloudwego/eino/schema"

// snapshot returns a copy of the committed history.
func (s *providerSession) snapshot() []*schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*schema.Message(nil), s.history...)
}
