package watch

// Executor runs delivery tasks. A registration never hands its executor
// more than one task at a time.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func())

func (f ExecutorFunc) Execute(task func()) { f(task) }

type inline struct{}

func (inline) Execute(task func()) { task() }

type async struct{}

func (async) Execute(task func()) { go task() }

var (
	// Inline runs deliveries on the goroutine that published the event,
	// after the engine has released its locks.
	Inline Executor = inline{}
	// Async runs each delivery batch on a fresh goroutine.
	Async Executor = async{}
)

// DefaultExecutor is the executor used when Watch is given nil.
func DefaultExecutor(c Class) Executor {
	if c == ClassMode {
		return Async
	}
	return Inline
}
