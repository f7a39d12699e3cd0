package pipeline

// Builder assembles a pipeline graph from plain config records, replacing
// the Lua scripting layer the original configures pipelines with —
// per §9's design note: "Dynamic config via scripting → a typed builder
// API with a configuration record per node; no runtime reflection
// required." Each With* call returns the Builder so call sites read as a
// chained declaration of the graph shape.
type Builder struct {
	root *Node
	err  error
}

// NewBuilder starts a pipeline rooted at an already-constructed node
// (typically a source or demux owned by internal/dvbio or internal/source).
func NewBuilder(root *Node) *Builder {
	return &Builder{root: root}
}

// Root returns the pipeline's root node.
func (b *Builder) Root() *Node { return b.root }

// Err returns the first error encountered by any With* call, if any.
func (b *Builder) Err() error { return b.err }

// WithChild attaches a freshly built child node under parent and returns
// the builder unchanged, so the graph keeps growing from the same root.
func (b *Builder) WithChild(parent *Node, child *Node) *Builder {
	if b.err != nil {
		return b
	}
	if err := parent.Attach(child); err != nil {
		b.err = err
	}
	return b
}

// SinkConfig describes a leaf consumer's static PID subscription, the
// config-record analogue of a Lua module's option table.
type SinkConfig struct {
	Name string
	PIDs []uint16
	Sink Sink
}

// WithSink builds a leaf node from cfg, attaches it under parent, and
// immediately joins every PID cfg declares, propagating demand up the
// whole ancestry in one call.
func (b *Builder) WithSink(parent *Node, cfg SinkConfig) (*Node, error) {
	if b.err != nil {
		return nil, b.err
	}
	n := New(cfg.Name, cfg.Sink)
	if err := parent.Attach(n); err != nil {
		b.err = err
		return nil, err
	}
	for _, pid := range cfg.PIDs {
		n.JoinPID(pid)
	}
	return n, nil
}
