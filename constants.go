package ringrt

// Default capacities and sizes. These bound the fixed-size tables the
// runtime refuses to grow at runtime (spec non-goal: dynamic growth of
// the task or completer tables).
const (
	// DefaultRingEntries is the submission-queue depth requested from
	// the kernel ring on New.
	DefaultRingEntries = 256

	// DefaultTaskCapacity bounds the task registry.
	DefaultTaskCapacity = 1024

	// DefaultCompleterCapacity bounds the completer registry. It is
	// larger than the task capacity because a single task can have
	// several completers live at once (e.g. a spawn_cpu in its
	// Queue+Execute phases alongside sibling ops).
	DefaultCompleterCapacity = 4096

	// DefaultPagePoolCapacity bounds the page pool (§4.B).
	DefaultPagePoolCapacity = 64

	// DefaultWorkerCount is the CPU worker pool size (§4.G).
	DefaultWorkerCount = 4
)
