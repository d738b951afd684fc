package smp

// Kind identifies the IPI message type carried in Message.Kind.
type Kind uint8

const (
	KindWake Kind = iota + 1
	KindShutdown
	KindReschedule
	KindTLBShootdown
	KindCall
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindWake:
		return "wake"
	case KindShutdown:
		return "shutdown"
	case KindReschedule:
		return "reschedule"
	case KindTLBShootdown:
		return "tlb_shootdown"
	case KindCall:
		return "call"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// Message is a fixed-size IPI envelope.
//
// A send copies the message by value into the mailbox of every core named
// in TargetMask; the queue owns its copy until the recipient drains it.
type Message struct {
	Kind       Kind
	Tag        uint8  // user handler key, meaningful only for KindUser
	TargetMask uint64 // bit i set ⇔ core i is a recipient
	Payload    uint64 // kind-specific scalar
	Call       func() // meaningful only for KindCall; must stay valid until every recipient has run it
}
