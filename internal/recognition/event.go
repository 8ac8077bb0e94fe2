package recognition

// Event is one item of a session's output stream. Consumers switch on the
// concrete type:
//
//	switch ev := ev.(type) {
//	case Partial:
//	case Final:
//	case Error:
//	case End:
//	}
type Event interface {
	isEvent()
}

// Partial is the live transcript of the utterance in progress. Each Partial
// supersedes the previous one.
type Partial struct {
	Text string
}

// Final is a completed utterance, delivered once per utterance boundary.
type Final struct {
	Text string
}

// Error reports a capability fault. The session is stopped when it is emitted.
type Error struct {
	Reason string
}

// End is the last event of every session.
type End struct{}

func (Partial) isEvent() {}
func (Final) isEvent()   {}
func (Error) isEvent()   {}
func (End) isEvent()     {}
