package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const scriptFilename = "<script>"

// maxCallDepth bounds the script call stack. The interpreter has no limit
// of its own, and unbounded recursion would overflow the Go stack, which no
// recover can catch.
const maxCallDepth = 1000

// depthCheckInterval is the number of steps between call-depth checks. A
// step pushes at most two frames, so the depth can overshoot maxCallDepth
// by less than twice this.
const depthCheckInterval = 16

// maxBacktraceFrames keeps a deep recursion from producing a fault message
// thousands of lines long.
const maxBacktraceFrames = 20

// fileOptions enables the Python-like constructs scripts are written with.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Worker executes one script against one namespace.
type Worker struct {
	// MaxSteps caps interpreter steps. Zero means unlimited.
	MaxSteps uint64
}

// Run executes source with ns as its only visible environment. Output goes
// to the session buffers. Every failure, including a panic, comes back as
// the returned error; it never escapes as a panic.
func (w *Worker) Run(ctx context.Context, source string, ns starlark.StringDict, args Vector, s *Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	if err := checkNames(source, ns); err != nil {
		return err
	}

	thread := &starlark.Thread{
		Name: "script",
		Print: func(_ *starlark.Thread, msg string) {
			s.Stdout.WriteString(msg + "\n")
		},
		Load: func(*starlark.Thread, string) (starlark.StringDict, error) {
			return nil, errors.New("load is not supported")
		},
	}
	thread.SetLocal(sessionKey, s)
	g := stepGuard{maxSteps: w.MaxSteps}
	thread.OnMaxSteps = g.check
	thread.SetMaxExecutionSteps(g.next(0))

	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	_, prog, err := starlark.SourceProgramOptions(fileOptions, scriptFilename, source, ns.Has)
	if err != nil {
		return err
	}
	globals, err := prog.Init(thread, ns)
	if err != nil {
		return err
	}

	if fn, ok := globals["main"].(starlark.Callable); ok {
		if _, err := starlark.Call(thread, fn, starlark.Tuple(args.Values()), nil); err != nil {
			return err
		}
	}
	return nil
}

// stepGuard runs every depthCheckInterval steps. It enforces the call-depth
// cap and, when set, the step budget.
type stepGuard struct {
	maxSteps uint64
}

func (g stepGuard) next(steps uint64) uint64 {
	n := steps + depthCheckInterval
	if g.maxSteps > 0 && g.maxSteps < n {
		n = g.maxSteps
	}
	return n
}

func (g stepGuard) check(thread *starlark.Thread) {
	steps := thread.ExecutionSteps()
	if g.maxSteps > 0 && steps >= g.maxSteps {
		thread.Cancel("too many steps")
		return
	}
	if thread.CallStackDepth() > maxCallDepth {
		thread.Cancel(fmt.Sprintf("maximum recursion depth exceeded (%d)", maxCallDepth))
		return
	}
	thread.SetMaxExecutionSteps(g.next(steps))
}

// checkNames resolves the script against ns alone. The interpreter would
// otherwise fall back to its own universe of builtins, which is wider than
// any policy; here only None, True and False are universal.
func checkNames(source string, ns starlark.StringDict) error {
	f, err := fileOptions.Parse(scriptFilename, source, 0)
	if err != nil {
		return err
	}
	return resolve.File(f, ns.Has, isConstant)
}

func isConstant(name string) bool {
	switch name {
	case "None", "True", "False":
		return true
	}
	return false
}

// describeFault renders a script failure the way it should reach a user.
func describeFault(err error) string {
	var evalErr *starlark.EvalError
	if !errors.As(err, &evalErr) {
		return err.Error()
	}
	if len(evalErr.CallStack) <= maxBacktraceFrames {
		return evalErr.Backtrace()
	}

	// Keep the outermost and innermost frames of a deep stack.
	stack := evalErr.CallStack
	half := maxBacktraceFrames / 2
	omitted := len(stack) - 2*half
	trimmed := *evalErr
	trimmed.CallStack = append(append(starlark.CallStack{}, stack[:half]...), stack[len(stack)-half:]...)
	bt := trimmed.Backtrace()
	marker := fmt.Sprintf("  ... %d frames omitted ...\n", omitted)
	if i := nthLineEnd(bt, half+1); i >= 0 {
		bt = bt[:i] + marker + bt[i:]
	}
	return bt
}

// nthLineEnd returns the offset just past the n-th newline of s, or -1.
func nthLineEnd(s string, n int) int {
	off := 0
	for range n {
		i := strings.IndexByte(s[off:], '\n')
		if i < 0 {
			return -1
		}
		off += i + 1
	}
	return off
}
