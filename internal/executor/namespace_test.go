package executor

import (
	"errors"
	randv2 "math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

func TestBuilder_BuildHoldsExactlyPolicy(t *testing.T) {
	p := NewPolicy([]string{"print", "len", "no_such_builtin"}, []string{"math", "no_such_module"}, false)
	ns := NewBuilder(p).Build(Decode("1,2"), NewSession(0))

	names := make([]string, 0, len(ns))
	for k := range ns {
		names = append(names, k)
	}
	assert.ElementsMatch(t, []string{"print", "len", "math", "args"}, names)
}

func TestBuilder_FreshStatePerRun(t *testing.T) {
	b := NewBuilder(DefaultPolicy())
	first := b.Build(Decode("1"), NewSession(0))
	second := b.Build(Decode("1"), NewSession(0))

	assert.NotSame(t, first["args"], second["args"])
	assert.NotSame(t, first["math"], second["math"])

	m1 := first["math"].(*starlarkstruct.Module)
	m1.Members["pi"] = starlark.Float(3)
	m2 := second["math"].(*starlarkstruct.Module)
	assert.NotEqual(t, starlark.Float(3), m2.Members["pi"])

	require.NoError(t, first["args"].(*starlark.List).Append(starlark.MakeInt(9)))
	assert.Equal(t, 1, second["args"].(*starlark.List).Len())
}

func TestBuilder_FailingLoaderIsOmitted(t *testing.T) {
	p := NewPolicy([]string{"print"}, []string{"broken", "panicky", "math"}, false)
	b := NewBuilder(p)
	b.Register("broken", func(*Session) (starlark.Value, error) {
		return nil, errors.New("not installed")
	})
	b.Register("panicky", func(*Session) (starlark.Value, error) {
		panic("boom")
	})

	ns := b.Build(Vector{}, NewSession(0))
	assert.Contains(t, ns, "math")
	assert.NotContains(t, ns, "broken")
	assert.NotContains(t, ns, "panicky")

	c := runJob(t.Context(), b, &Worker{}, 0, Job{Source: "print('still runs')", Args: Vector{}})
	require.False(t, c.Faulted, c.Fault)
	assert.Equal(t, "still runs\n", c.Stdout)
}

func TestStockModules(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"math", "print(math.sqrt(16))", "4.0"},
		{"json", `print(json.encode({"a": 1}))`, `{"a":1}`},
		{"time", "print(type(time.now()))", "time.time"},
		{"mean", "print(statistics.mean([1, 2, 3, 4]))", "2.5"},
		{"median odd", "print(statistics.median([3, 1, 2]))", "2"},
		{"median even", "print(statistics.median([1, 2, 3, 4]))", "2.5"},
		{"mode", "print(statistics.mode([1, 2, 2, 3]))", "2"},
		{"pvariance", "print(statistics.pvariance([1, 2, 3, 4]))", "1.25"},
		{"pstdev", "print(statistics.pstdev([2, 4, 4, 4, 5, 5, 7, 9]))", "2.0"},
		{"stdev", "print(statistics.stdev([1, 3]))", "1.4142135623730951"},
		{"randint", "x = random.randint(1, 6)\nprint(1 <= x and x <= 6)", "True"},
		{"choice", "print(random.choice(['only']))", "only"},
		{"sample", "print(len(random.sample([1, 2, 3, 4], 2)))", "2"},
		{"shuffle", "xs = [1, 2, 3]\nrandom.shuffle(xs)\nprint(sorted(xs))", "[1, 2, 3]"},
		{"uniform", "u = random.uniform(2, 3)\nprint(u >= 2 and u <= 3)", "True"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := runScript(t, DefaultPolicy(), tt.src, Vector{})
			require.False(t, c.Faulted, c.Fault)
			assert.Equal(t, tt.want+"\n", c.Stdout)
		})
	}
}

func TestStatistics_Errors(t *testing.T) {
	c := runScript(t, DefaultPolicy(), "statistics.mean([])", Vector{})
	require.True(t, c.Faulted)
	assert.Contains(t, c.Fault, "at least one data point")

	c = runScript(t, DefaultPolicy(), "statistics.variance([1])", Vector{})
	require.True(t, c.Faulted)
	assert.Contains(t, c.Fault, "at least 2 data points")
}

func TestRandom_SeedIsPerRun(t *testing.T) {
	src := "random.seed(42)\nprint(random.randint(0, 1000000))"
	a := runScript(t, DefaultPolicy(), src, Vector{})
	b := runScript(t, DefaultPolicy(), src, Vector{})
	require.False(t, a.Faulted, a.Fault)
	assert.Equal(t, a.Stdout, b.Stdout)
}

func TestRandom_SampleHugePopulation(t *testing.T) {
	src := "xs = random.sample(range(2000000000), 3)\nprint(len(xs), len(set(xs)), all([0 <= x and x < 2000000000 for x in xs]))"
	c := runScript(t, DefaultPolicy(), src, Vector{})
	require.False(t, c.Faulted, c.Fault)
	assert.Equal(t, "3 3 True\n", c.Stdout)
}

func TestSampleIndices(t *testing.T) {
	r := randv2.New(randv2.NewPCG(1, 2))

	full := sampleIndices(r, 50, 50)
	slices.Sort(full)
	for i, v := range full {
		assert.Equal(t, i, v)
	}

	for range 100 {
		idx := sampleIndices(r, 10, 4)
		seen := map[int]bool{}
		for _, v := range idx {
			assert.GreaterOrEqual(t, v, 0)
			assert.Less(t, v, 10)
			assert.False(t, seen[v], "duplicate index %d", v)
			seen[v] = true
		}
	}

	assert.Empty(t, sampleIndices(r, 10, 0))
}
