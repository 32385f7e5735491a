package executor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/scriptbox/internal/executor"
)

func TestDefaultPolicy(t *testing.T) {
	p := executor.DefaultPolicy()

	for _, name := range []string{"print", "eprint", "len", "sorted", "sum", "map"} {
		assert.True(t, p.AllowsPrimitive(name), name)
	}
	for _, name := range []string{"open", "import_module", "new_type", "getattr", "hasattr", "dir", "load"} {
		assert.False(t, p.AllowsPrimitive(name), name)
	}
	for _, name := range []string{"math", "statistics", "random", "time", "json"} {
		assert.True(t, p.AllowsModule(name), name)
	}
	assert.False(t, p.AllowsModule("os"))
	assert.NoError(t, p.Validate())
}

func TestPolicy_ZeroValueDeniesEverything(t *testing.T) {
	var p executor.Policy
	assert.False(t, p.AllowsPrimitive("print"))
	assert.False(t, p.AllowsModule("math"))
	assert.Empty(t, p.Primitives())
}

func TestPolicy_Validate(t *testing.T) {
	unsafe := executor.NewPolicy([]string{"print", "import_module"}, nil, false)
	err := unsafe.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, executor.ErrUnsafePolicy)
	assert.Contains(t, err.Error(), "import_module")

	acknowledged := executor.NewPolicy([]string{"print", "import_module", "new_type"}, nil, true)
	assert.NoError(t, acknowledged.Validate())
}

func TestPolicy_SpecRoundTrip(t *testing.T) {
	p := executor.NewPolicy([]string{" zip ", "abs", "", "abs"}, []string{"math"}, false)
	spec := p.Spec()
	assert.Equal(t, []string{"abs", "zip"}, spec.Primitives)
	assert.Equal(t, []string{"math"}, spec.Modules)

	back := executor.PolicyFromSpec(spec)
	assert.Equal(t, p.Primitives(), back.Primitives())
	assert.Equal(t, p.Modules(), back.Modules())
}

func TestCatalogNames(t *testing.T) {
	names := executor.CatalogNames()
	for _, p := range executor.DefaultPolicy().Primitives() {
		assert.Contains(t, names, p)
	}
	assert.Contains(t, names, "import_module")
	assert.NotContains(t, names, "open")
}
