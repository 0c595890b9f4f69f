package ovn

import "context"

// ExecResult is the raw outcome of one diagnostic command on a node.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs a command vector on a named cluster node and returns its
// raw output. Implementations own the transport (oc debug, SSH, agent);
// this package only consumes the interface. A returned error means the
// command could not be run at all, which is different from a command
// that ran and exited non-zero.
type Executor interface {
	Exec(ctx context.Context, node string, argv []string) (ExecResult, error)
}
