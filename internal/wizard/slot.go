package wizard

import "sync"

// Slot holds at most one open wizard for an owner, such as a chat.
// Every Open starts from an empty draft.
type Slot struct {
	newWizard func() *Wizard

	mu      sync.Mutex
	current *Wizard
}

func NewSlot(newWizard func() *Wizard) *Slot {
	return &Slot{newWizard: newWizard}
}

// Open closes any wizard already in the slot and returns a fresh one.
func (s *Slot) Open() *Wizard {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Close()
	}
	s.current = s.newWizard()
	return s.current
}

// Current returns the open wizard, if any.
func (s *Slot) Current() (*Wizard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.Closed() {
		s.current = nil
		return nil, false
	}
	return s.current, true
}

func (s *Slot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Close()
		s.current = nil
	}
}
