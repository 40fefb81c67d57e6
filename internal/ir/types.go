package ir

// Program is a compiled set of class declarations and the interceptions the
// application asks to install at startup.
type Program struct {
	Classes    []ClassSpec     `json:"classes"`
	Intercepts []InterceptSpec `json:"intercepts"`
}

// Class returns the declaration for name, or nil.
func (p *Program) Class(name string) *ClassSpec {
	for i := range p.Classes {
		if p.Classes[i].Name == name {
			return &p.Classes[i]
		}
	}
	return nil
}

// ClassSpec declares a class, its superclass and its locally defined methods.
// Super is empty for root classes.
type ClassSpec struct {
	Name    string       `json:"name"`
	Super   string       `json:"super,omitempty"`
	Methods []MethodSpec `json:"methods"`
}

// Method returns the local method declaration for selector, or nil.
func (c *ClassSpec) Method(selector string) *MethodSpec {
	for i := range c.Methods {
		if c.Methods[i].Selector == selector {
			return &c.Methods[i]
		}
	}
	return nil
}

// MethodSpec is one locally defined method: a selector and a step body.
type MethodSpec struct {
	Selector string `json:"selector"`
	Body     []Step `json:"body"`
}

// StepOp names what a body step does.
type StepOp string

const (
	// StepLog appends a log line to the trace.
	StepLog StepOp = "log"

	// StepSend sends Selector to self through normal dispatch.
	StepSend StepOp = "send"

	// StepSuper sends Selector starting at the defining class's superclass.
	StepSuper StepOp = "super"

	// StepReturn ends the body with Value.
	StepReturn StepOp = "return"
)

// ValidStepOps defines allowed step operations.
var ValidStepOps = map[StepOp]bool{
	StepLog:    true,
	StepSend:   true,
	StepSuper:  true,
	StepReturn: true,
}

// Step is one instruction in a method body.
//
// Strings in Message, Args and Value may contain ${N}, ${result} and
// ${class} placeholders, expanded by the engine at call time.
type Step struct {
	Op       StepOp  `json:"op"`
	Selector string  `json:"selector,omitempty"` // send, super
	Args     IRArray `json:"args,omitempty"`     // send, super; nil forwards received args, see MarshalJSON
	Value    IRValue `json:"value,omitempty"`    // return
	Message  string  `json:"message,omitempty"`  // log
}

// InterceptSpec asks for Original on Class to be wrapped by Wrapper.
type InterceptSpec struct {
	Class    string `json:"class"`
	Original string `json:"original"`
	Wrapper  string `json:"wrapper"`
}

// InstallCase records which branch of the install procedure applied.
type InstallCase string

const (
	// CaseInherited means the target did not define the original locally;
	// the wrapper code was added locally and the wrapper selector rebound to
	// the ancestor's implementation.
	CaseInherited InstallCase = "inherited"

	// CaseLocal means the target defined the original locally and the two
	// local bindings were exchanged.
	CaseLocal InstallCase = "local"

	// CaseAncestor means the target inherits original from an ancestor
	// already intercepted with the same wrapper. No table changed.
	CaseAncestor InstallCase = "ancestor"
)

// InterceptionRecord tracks one (class, original selector) interception.
// Applied transitions false to true exactly once.
type InterceptionRecord struct {
	ID       string      `json:"id"` // RecordID(Target, Original)
	Target   string      `json:"target"`
	Original string      `json:"original"`
	Wrapper  string      `json:"wrapper"`
	Case     InstallCase `json:"case,omitempty"`
	Applied  bool        `json:"applied"`
}

// EventKind categorizes trace events.
type EventKind string

const (
	EventInstall EventKind = "install"
	EventSend    EventKind = "send"
	EventLog     EventKind = "log"
	EventReturn  EventKind = "return"
)

// TraceEvent is one observable step of a run.
//
//   - install: Receiver is the target class, Selector the original,
//     Implementation the wrapper selector, Message the install case
//   - send: Receiver is the receiving object's class, Implementation the
//     resolved implementation name, Args the arguments
//   - log: Message is the expanded text, Implementation the emitting body
//   - return: Value is the returned value
type TraceEvent struct {
	ID             string    `json:"id"`
	RunID          string    `json:"run_id"`
	Seq            int64     `json:"seq"` // Logical clock, never wall time
	Kind           EventKind `json:"kind"`
	Receiver       string    `json:"receiver,omitempty"`
	Selector       string    `json:"selector,omitempty"`
	Implementation string    `json:"implementation,omitempty"`
	Depth          int       `json:"depth"`
	Args           IRArray   `json:"args,omitempty"`
	Value          IRValue   `json:"value,omitempty"`
	Message        string    `json:"message,omitempty"`
}

// Version constants.
const (
	// IRVersion is the IR schema version.
	IRVersion = "1"

	// EngineVersion is the swizzle engine version.
	EngineVersion = "0.1.0"
)
