package orchestrator

import (
	"fmt"
	"strings"
)

// BuildError is one failed build unit, identified by its full target and
// architecture.
type BuildError struct {
	Target string
	Arch   string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("fail building of %s %s", e.Target, e.Arch)
}

// MultipleBuildErrors aggregates every unit failure of a try-all run. It is
// never constructed empty.
type MultipleBuildErrors struct {
	Errors []*BuildError
}

func (e *MultipleBuildErrors) Error() string {
	var b strings.Builder
	b.WriteString("fail building of the following targets:")
	for _, be := range e.Errors {
		fmt.Fprintf(&b, "\n  %s %s", be.Target, be.Arch)
	}
	return b.String()
}
