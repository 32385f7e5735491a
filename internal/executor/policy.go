package executor

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnsafePolicy is returned by Policy.Validate when a policy enables a
// hazardous primitive without acknowledging it.
var ErrUnsafePolicy = errors.New("unsafe policy")

// defaultPrimitives is the pure, side-effect-free subset exposed to scripts.
// No entry can reach the filesystem, network, processes or environment.
var defaultPrimitives = []string{
	"abs", "all", "any", "bin", "bool", "chr", "dict", "divmod",
	"enumerate", "eprint", "fail", "filter", "float", "hex", "int", "len",
	"list", "map", "max", "min", "oct", "ord", "pow", "print", "range",
	"repr", "reversed", "round", "set", "sorted", "str", "sum", "tuple",
	"type", "zip",
}

var defaultModules = []string{"math", "statistics", "random", "time", "json"}

// hazardousPrimitives can escape the module allow-list or build new types
// at runtime. A policy may only name them with AcknowledgeUnsafe set.
var hazardousPrimitives = []string{"import_module", "new_type"}

// Policy is the immutable set of primitives and modules a script may use.
// The zero value denies everything.
type Policy struct {
	primitives map[string]struct{}
	modules    map[string]struct{}

	// AcknowledgeUnsafe permits hazardous primitives in the allow-list.
	AcknowledgeUnsafe bool
}

// PolicySpec is the serializable form of a Policy. It is what the config
// file, the policy command and the worker protocol carry.
type PolicySpec struct {
	Primitives        []string `json:"primitives" yaml:"primitives" mapstructure:"primitives"`
	Modules           []string `json:"modules" yaml:"modules" mapstructure:"modules"`
	AcknowledgeUnsafe bool     `json:"acknowledge_unsafe_primitives" yaml:"acknowledge_unsafe_primitives" mapstructure:"acknowledge_unsafe_primitives"`
}

// NewPolicy builds a policy from name lists. Blank names are dropped and
// unknown names are kept; they simply never resolve to anything.
func NewPolicy(primitives, modules []string, acknowledgeUnsafe bool) Policy {
	return Policy{
		primitives:        toSet(primitives),
		modules:           toSet(modules),
		AcknowledgeUnsafe: acknowledgeUnsafe,
	}
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return NewPolicy(defaultPrimitives, defaultModules, false)
}

// PolicyFromSpec builds a policy from its serialized form.
func PolicyFromSpec(s PolicySpec) Policy {
	return NewPolicy(s.Primitives, s.Modules, s.AcknowledgeUnsafe)
}

// DefaultPolicySpec is the serialized form of DefaultPolicy.
func DefaultPolicySpec() PolicySpec {
	return DefaultPolicy().Spec()
}

// AllowsPrimitive reports whether scripts may call the named builtin.
func (p Policy) AllowsPrimitive(name string) bool {
	_, ok := p.primitives[name]
	return ok
}

// AllowsModule reports whether the named module is bound into scripts.
func (p Policy) AllowsModule(name string) bool {
	_, ok := p.modules[name]
	return ok
}

// Primitives returns the allowed primitive names, sorted.
func (p Policy) Primitives() []string { return sortedKeys(p.primitives) }

// Modules returns the allowed module names, sorted.
func (p Policy) Modules() []string { return sortedKeys(p.modules) }

// Spec returns the serializable form of p.
func (p Policy) Spec() PolicySpec {
	return PolicySpec{
		Primitives:        p.Primitives(),
		Modules:           p.Modules(),
		AcknowledgeUnsafe: p.AcknowledgeUnsafe,
	}
}

// Validate rejects a policy that enables hazardous primitives without
// AcknowledgeUnsafe.
func (p Policy) Validate() error {
	if p.AcknowledgeUnsafe {
		return nil
	}
	var named []string
	for _, name := range hazardousPrimitives {
		if p.AllowsPrimitive(name) {
			named = append(named, name)
		}
	}
	if len(named) > 0 {
		return fmt.Errorf("%w: %s requires acknowledge_unsafe_primitives", ErrUnsafePolicy, strings.Join(named, ", "))
	}
	return nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
