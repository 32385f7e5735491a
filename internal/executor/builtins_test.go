package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"sum ints", "print(sum([1, 2, 3]))", "6"},
		{"sum with start", "print(sum([1, 2], 10))", "13"},
		{"sum floats", "print(sum([0.5, 1.5]))", "2.0"},
		{"round half even", "print(round(2.5), round(3.5))", "2 4"},
		{"round ndigits", "print(round(3.14159, 2))", "3.14"},
		{"round int", "print(round(7))", "7"},
		{"round huge ndigits", "print(round(1.5, 400))", "1.5"},
		{"round ndigits past float range", "print(round(1e300, 10))", "1e+300"},
		{"round huge negative ndigits", "print(round(1.5, -400), round(5, -400))", "0.0 0"},
		{"pow int", "print(pow(2, 10))", "1024"},
		{"pow mod", "print(pow(2, 10, 1000))", "24"},
		{"pow negative exp", "print(pow(2, -1))", "0.5"},
		{"pow float", "print(pow(4.0, 0.5))", "2.0"},
		{"divmod", "print(divmod(7, 2))", "(3, 1)"},
		{"divmod negative", "print(divmod(-7, 2))", "(-4, 1)"},
		{"hex oct bin", "print(hex(255), oct(8), bin(5))", "0xff 0o10 0b101"},
		{"hex negative", "print(hex(-255))", "-0xff"},
		{"map", "print(map(lambda x: x * 2, [1, 2, 3]))", "[2, 4, 6]"},
		{"map two iterables", "print(map(lambda a, b: a + b, [1, 2, 3], [10, 20]))", "[11, 22]"},
		{"filter", "print(filter(lambda x: x > 1, [0, 1, 2, 3]))", "[2, 3]"},
		{"filter none", "print(filter(None, [0, 1, '', 'a']))", `[1, "a"]`},
		{"universe builtins", "print(sorted([3, 1, 2]), len('abc'), abs(-2))", "[1, 2, 3] 3 2"},
		{"set", "print(len(set([1, 1, 2])))", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := runScript(t, DefaultPolicy(), tt.src, Vector{})
			require.False(t, c.Faulted, c.Fault)
			assert.Equal(t, tt.want+"\n", c.Stdout)
		})
	}
}

func TestBuiltins_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"pow too large", "pow(10, 100000000)", "result too large"},
		{"pow zero mod", "pow(2, 3, 0)", "mod must not be zero"},
		{"hex of float", "hex(1.5)", "want int"},
		{"sum of strings", "sum(['a', 'b'])", "sum"},
		{"map not callable", "map(1, [1])", "want callable"},
		{"divmod by zero", "divmod(1, 0)", "division by zero"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := runScript(t, DefaultPolicy(), tt.src, Vector{})
			require.True(t, c.Faulted)
			assert.Contains(t, c.Fault, tt.want)
		})
	}
}

func TestHazardousPrimitives(t *testing.T) {
	p := NewPolicy(append(DefaultPolicy().Primitives(), "import_module", "new_type"), []string{"math"}, true)

	t.Run("import_module bypasses module list", func(t *testing.T) {
		c := runScript(t, p, "j = import_module('json')\nprint(j.encode([1]))", Vector{})
		require.False(t, c.Faulted, c.Fault)
		assert.Equal(t, "[1]\n", c.Stdout)
	})

	t.Run("import_module unknown", func(t *testing.T) {
		c := runScript(t, p, "import_module('os')", Vector{})
		require.True(t, c.Faulted)
		assert.Contains(t, c.Fault, `no module named "os"`)
	})

	t.Run("new_type", func(t *testing.T) {
		c := runScript(t, p, "Point = new_type('Point')\npt = Point(x=1, y=2)\nprint(pt.x + pt.y)", Vector{})
		require.False(t, c.Faulted, c.Fault)
		assert.Equal(t, "3\n", c.Stdout)
	})
}
