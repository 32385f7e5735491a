package executor

import (
	"errors"
	"fmt"
	"maps"
	"math"
	randv2 "math/rand/v2"
	"slices"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

var stockLoaders = map[string]ModuleLoader{
	"math":       cloneOf(starlarkmath.Module),
	"time":       cloneOf(starlarktime.Module),
	"json":       cloneOf(starlarkjson.Module),
	"random":     newRandomModule,
	"statistics": newStatisticsModule,
}

// cloneOf copies a library module's member table so no two runs share one.
func cloneOf(m *starlarkstruct.Module) ModuleLoader {
	return func(*Session) (starlark.Value, error) {
		return &starlarkstruct.Module{Name: m.Name, Members: maps.Clone(m.Members)}, nil
	}
}

// random

func newRandomModule(s *Session) (starlark.Value, error) {
	rng := func() *randv2.Rand { return s.rng }
	return &starlarkstruct.Module{
		Name: "random",
		Members: starlark.StringDict{
			"random": starlark.NewBuiltin("random.random", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
					return nil, err
				}
				return starlark.Float(rng().Float64()), nil
			}),
			"uniform": starlark.NewBuiltin("random.uniform", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var lo, hi floatArg
				if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &lo, &hi); err != nil {
					return nil, err
				}
				return starlark.Float(float64(lo) + (float64(hi)-float64(lo))*rng().Float64()), nil
			}),
			"randint": starlark.NewBuiltin("random.randint", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var lo, hi int64
				if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &lo, &hi); err != nil {
					return nil, err
				}
				if lo > hi {
					return nil, fmt.Errorf("%s: empty range (%d, %d)", b.Name(), lo, hi)
				}
				span := uint64(hi-lo) + 1
				if span == 0 {
					return starlark.MakeInt64(int64(rng().Uint64())), nil
				}
				return starlark.MakeInt64(lo + int64(rng().Uint64N(span))), nil
			}),
			"choice": starlark.NewBuiltin("random.choice", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var seq starlark.Indexable
				if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &seq); err != nil {
					return nil, err
				}
				if seq.Len() == 0 {
					return nil, fmt.Errorf("%s: empty sequence", b.Name())
				}
				return seq.Index(rng().IntN(seq.Len())), nil
			}),
			"shuffle": starlark.NewBuiltin("random.shuffle", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var list *starlark.List
				if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &list); err != nil {
					return nil, err
				}
				for i := list.Len() - 1; i > 0; i-- {
					j := rng().IntN(i + 1)
					a, c := list.Index(i), list.Index(j)
					if err := list.SetIndex(i, c); err != nil {
						return nil, fmt.Errorf("%s: %v", b.Name(), err)
					}
					if err := list.SetIndex(j, a); err != nil {
						return nil, fmt.Errorf("%s: %v", b.Name(), err)
					}
				}
				return starlark.None, nil
			}),
			"sample": starlark.NewBuiltin("random.sample", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var population starlark.Indexable
				var k int
				if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &population, &k); err != nil {
					return nil, err
				}
				n := population.Len()
				if k < 0 || k > n {
					return nil, fmt.Errorf("%s: sample larger than population or is negative", b.Name())
				}
				idx := sampleIndices(rng(), n, k)
				out := make([]starlark.Value, k)
				for i, j := range idx {
					out[i] = population.Index(j)
				}
				return starlark.NewList(out), nil
			}),
			"seed": starlark.NewBuiltin("random.seed", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var seed int64
				if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &seed); err != nil {
					return nil, err
				}
				s.rng = randv2.New(randv2.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
				return starlark.None, nil
			}),
		},
	}, nil
}

// sampleIndices draws k distinct indices from [0, n) with a sparse
// Fisher-Yates shuffle. Memory is proportional to k, not n.
func sampleIndices(r *randv2.Rand, n, k int) []int {
	moved := make(map[int]int, k)
	at := func(i int) int {
		if v, ok := moved[i]; ok {
			return v
		}
		return i
	}

	out := make([]int, k)
	for i := range k {
		j := i + r.IntN(n-i)
		out[i] = at(j)
		moved[j] = at(i)
	}
	return out
}

// floatArg unpacks an int or float as a float64.
type floatArg float64

func (f *floatArg) Unpack(v starlark.Value) error {
	x, ok := starlark.AsFloat(v)
	if !ok {
		return fmt.Errorf("got %s, want int or float", v.Type())
	}
	*f = floatArg(x)
	return nil
}

// statistics

var errNoData = errors.New("requires at least one data point")

func newStatisticsModule(*Session) (starlark.Value, error) {
	members := starlark.StringDict{
		"mean":      floatStat("statistics.mean", 1, mean),
		"variance":  floatStat("statistics.variance", 2, sampleVariance),
		"pvariance": floatStat("statistics.pvariance", 1, populationVariance),
		"stdev": floatStat("statistics.stdev", 2, func(xs []float64) float64 {
			return math.Sqrt(sampleVariance(xs))
		}),
		"pstdev": floatStat("statistics.pstdev", 1, func(xs []float64) float64 {
			return math.Sqrt(populationVariance(xs))
		}),
		"median": starlark.NewBuiltin("statistics.median", median),
		"mode":   starlark.NewBuiltin("statistics.mode", mode),
	}
	return &starlarkstruct.Module{Name: "statistics", Members: members}, nil
}

func floatStat(name string, min int, fn func([]float64) float64) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var data starlark.Iterable
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &data); err != nil {
			return nil, err
		}
		xs, err := floats(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
		if len(xs) < min {
			if min == 1 {
				return nil, fmt.Errorf("%s: %w", b.Name(), errNoData)
			}
			return nil, fmt.Errorf("%s: requires at least %d data points", b.Name(), min)
		}
		return starlark.Float(fn(xs)), nil
	})
}

func floats(data starlark.Iterable) ([]float64, error) {
	iter := data.Iterate()
	defer iter.Done()

	var xs []float64
	var v starlark.Value
	for iter.Next(&v) {
		f, ok := starlark.AsFloat(v)
		if !ok {
			return nil, fmt.Errorf("got %s, want int or float", v.Type())
		}
		xs = append(xs, f)
	}
	return xs, nil
}

func mean(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}

func sumSquares(xs []float64) float64 {
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return ss
}

func sampleVariance(xs []float64) float64 {
	return sumSquares(xs) / float64(len(xs)-1)
}

func populationVariance(xs []float64) float64 {
	return sumSquares(xs) / float64(len(xs))
}

// median returns the middle element for odd counts and the mean of the
// two middle elements otherwise.
func median(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &data); err != nil {
		return nil, err
	}
	xs, err := floats(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("%s: %w", b.Name(), errNoData)
	}
	slices.Sort(xs)
	n := len(xs)
	if n%2 == 1 {
		mid := xs[n/2]
		if mid == math.Trunc(mid) && allInts(data) {
			return starlark.MakeInt64(int64(mid)), nil
		}
		return starlark.Float(mid), nil
	}
	return starlark.Float((xs[n/2-1] + xs[n/2]) / 2), nil
}

func allInts(data starlark.Iterable) bool {
	iter := data.Iterate()
	defer iter.Done()
	var v starlark.Value
	for iter.Next(&v) {
		if _, ok := v.(starlark.Int); !ok {
			return false
		}
	}
	return true
}

// mode returns the most common element; ties go to the first seen.
func mode(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &data); err != nil {
		return nil, err
	}

	counts := starlark.NewDict(8)
	var order []starlark.Value
	iter := data.Iterate()
	defer iter.Done()

	var v starlark.Value
	for iter.Next(&v) {
		prev, found, err := counts.Get(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
		n := 1
		if found {
			n = int(prev.(starlark.Int).BigInt().Int64()) + 1
		} else {
			order = append(order, v)
		}
		if err := counts.SetKey(v, starlark.MakeInt(n)); err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%s: %w", b.Name(), errNoData)
	}

	best, bestN := order[0], 0
	for _, k := range order {
		c, _, _ := counts.Get(k)
		n := int(c.(starlark.Int).BigInt().Int64())
		if n > bestN {
			best, bestN = k, n
		}
	}
	return best, nil
}
