package executor

import (
	"fmt"
	"maps"
	randv2 "math/rand/v2"

	"go.starlark.net/starlark"
)

const sessionKey = "scriptbox.session"

// Session is the mutable state owned by exactly one run: its two output
// buffers and its random source. Nothing in a Session is shared.
type Session struct {
	Stdout *OutputBuffer
	Stderr *OutputBuffer

	rng      *randv2.Rand
	importer func(name string) (starlark.Value, error)
}

// NewSession returns a session whose buffers keep at most maxOutputBytes each.
func NewSession(maxOutputBytes int) *Session {
	return &Session{
		Stdout: NewOutputBuffer(maxOutputBytes),
		Stderr: NewOutputBuffer(maxOutputBytes),
		rng:    randv2.New(randv2.NewPCG(randv2.Uint64(), randv2.Uint64())),
	}
}

func sessionOf(thread *starlark.Thread) *Session {
	s, _ := thread.Local(sessionKey).(*Session)
	return s
}

// ModuleLoader produces a fresh instance of a module for one session.
type ModuleLoader func(s *Session) (starlark.Value, error)

// Builder assembles the per-run namespace from a Policy.
type Builder struct {
	policy  Policy
	loaders map[string]ModuleLoader
}

// NewBuilder returns a builder with the stock module loaders registered.
func NewBuilder(policy Policy) *Builder {
	return &Builder{
		policy:  policy,
		loaders: maps.Clone(stockLoaders),
	}
}

// Register adds or replaces a module loader. It must not be called
// concurrently with Build.
func (b *Builder) Register(name string, loader ModuleLoader) {
	b.loaders[name] = loader
}

// Policy returns the policy the builder enforces.
func (b *Builder) Policy() Policy { return b.policy }

// Build returns a new namespace containing exactly the allowed primitives,
// the allowed modules that loaded, and args. A module that is not
// registered or whose loader fails is left out without error.
func (b *Builder) Build(args Vector, s *Session) starlark.StringDict {
	ns := make(starlark.StringDict, len(b.policy.primitives)+len(b.policy.modules)+1)

	for name := range b.policy.primitives {
		if v, ok := catalog[name]; ok {
			ns[name] = v
		}
	}
	for name := range b.policy.modules {
		m, err := b.load(name, s)
		if err != nil {
			continue
		}
		ns[name] = m
	}
	ns["args"] = starlark.NewList(args.Values())

	s.importer = func(name string) (starlark.Value, error) {
		return b.load(name, s)
	}
	return ns
}

func (b *Builder) load(name string, s *Session) (v starlark.Value, err error) {
	loader, ok := b.loaders[name]
	if !ok {
		return nil, fmt.Errorf("no module named %q", name)
	}
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("module %s: %v", name, r)
		}
	}()
	v, err = loader(s)
	if err == nil && v == nil {
		err = fmt.Errorf("module %s: loader returned nothing", name)
	}
	return v, err
}
