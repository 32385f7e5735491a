package executor

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// maxPowBits bounds the size of an integer pow result. Builtins are not
// preemptible, so an unbounded exponentiation could outlive its run.
const maxPowBits = 1 << 20

// universeNames are the interpreter builtins the catalog re-exports. The
// reflection helpers are present so a policy can opt into them.
var universeNames = []string{
	"abs", "all", "any", "bool", "bytes", "chr", "dict", "dir", "enumerate",
	"fail", "float", "getattr", "hasattr", "hash", "int", "len", "list",
	"max", "min", "ord", "print", "range", "repr", "reversed", "set",
	"sorted", "str", "tuple", "type", "zip",
}

// catalog is every primitive a policy can name. It is built once and only
// ever read; all entries are immutable builtins.
var catalog = newCatalog()

func newCatalog() starlark.StringDict {
	c := make(starlark.StringDict, len(universeNames)+12)
	for _, name := range universeNames {
		if v, ok := starlark.Universe[name]; ok {
			c[name] = v
		}
	}
	for _, b := range []*starlark.Builtin{
		starlark.NewBuiltin("eprint", eprint),
		starlark.NewBuiltin("sum", sum),
		starlark.NewBuiltin("round", round),
		starlark.NewBuiltin("pow", pow),
		starlark.NewBuiltin("divmod", divmod),
		starlark.NewBuiltin("hex", formatInt("0x", 16)),
		starlark.NewBuiltin("oct", formatInt("0o", 8)),
		starlark.NewBuiltin("bin", formatInt("0b", 2)),
		starlark.NewBuiltin("map", mapFn),
		starlark.NewBuiltin("filter", filter),
		starlark.NewBuiltin("import_module", importModule),
		starlark.NewBuiltin("new_type", newType),
	} {
		c[b.Name()] = b
	}
	return c
}

// CatalogNames lists every primitive a policy can enable.
func CatalogNames() []string {
	names := make(map[string]struct{}, len(catalog))
	for k := range catalog {
		names[k] = struct{}{}
	}
	return sortedKeys(names)
}

// eprint is print for the error channel. Anything it writes fails the run.
func eprint(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sep := " "
	if err := starlark.UnpackArgs(b.Name(), nil, kwargs, "sep?", &sep); err != nil {
		return nil, err
	}
	var sb strings.Builder
	for i, v := range args {
		if i > 0 {
			sb.WriteString(sep)
		}
		if s, ok := starlark.AsString(v); ok {
			sb.WriteString(s)
		} else {
			sb.WriteString(v.String())
		}
	}
	sb.WriteByte('\n')

	s := sessionOf(thread)
	if s == nil {
		return nil, fmt.Errorf("%s: no active session", b.Name())
	}
	s.Stderr.WriteString(sb.String())
	return starlark.None, nil
}

func sum(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var acc starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &acc); err != nil {
		return nil, err
	}
	iter := iterable.Iterate()
	defer iter.Done()

	var x starlark.Value
	for iter.Next(&x) {
		next, err := starlark.Binary(syntax.PLUS, acc, x)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
		acc = next
	}
	return acc, nil
}

// round rounds half to even. Without ndigits a float becomes an int.
func round(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, ndigits starlark.Value = nil, starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "number", &x, "ndigits?", &ndigits); err != nil {
		return nil, err
	}

	digits := 0
	hasDigits := ndigits != starlark.None
	if hasDigits {
		if err := starlark.AsInt(ndigits, &digits); err != nil {
			return nil, fmt.Errorf("%s: ndigits: %v", b.Name(), err)
		}
	}

	switch v := x.(type) {
	case starlark.Int:
		if !hasDigits || digits >= 0 {
			return v, nil
		}
		f, _ := starlark.AsFloat(v)
		scale := math.Pow(10, float64(-digits))
		if math.IsInf(scale, 0) {
			return starlark.MakeInt(0), nil
		}
		return floatToInt(b, math.RoundToEven(f/scale)*scale)
	case starlark.Float:
		f := float64(v)
		if !hasDigits {
			return floatToInt(b, math.RoundToEven(f))
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return v, nil
		}
		scale := math.Pow(10, float64(digits))
		switch {
		case scale == 0:
			// Rounding to a power of ten beyond any float leaves zero.
			return starlark.Float(math.Copysign(0, f)), nil
		case math.IsInf(scale, 0) || math.IsInf(f*scale, 0):
			// More digits than a float holds: nothing to round.
			return v, nil
		}
		return starlark.Float(math.RoundToEven(f*scale) / scale), nil
	default:
		return nil, fmt.Errorf("%s: got %s, want int or float", b.Name(), x.Type())
	}
}

func floatToInt(b *starlark.Builtin, f float64) (starlark.Value, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("%s: cannot convert %v to int", b.Name(), f)
	}
	i, _ := new(big.Float).SetFloat64(f).Int(nil)
	return starlark.MakeBigInt(i), nil
}

func pow(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var base, exp, mod starlark.Value = nil, nil, starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "base", &base, "exp", &exp, "mod?", &mod); err != nil {
		return nil, err
	}

	bi, baseIsInt := base.(starlark.Int)
	ei, expIsInt := exp.(starlark.Int)
	if baseIsInt && expIsInt && ei.Sign() >= 0 {
		var m *big.Int
		if mod != starlark.None {
			mi, ok := mod.(starlark.Int)
			if !ok {
				return nil, fmt.Errorf("%s: mod must be int", b.Name())
			}
			if mi.Sign() == 0 {
				return nil, fmt.Errorf("%s: mod must not be zero", b.Name())
			}
			m = mi.BigInt()
		} else if bits := bi.BigInt().BitLen(); bits > 1 {
			if e, ok := ei.Int64(); !ok || e > maxPowBits || e*int64(bits) > maxPowBits {
				return nil, fmt.Errorf("%s: result too large", b.Name())
			}
		}
		r := new(big.Int).Exp(bi.BigInt(), ei.BigInt(), m)
		if m != nil && r.Sign() != 0 && m.Sign() < 0 {
			r.Add(r, m)
		}
		return starlark.MakeBigInt(r), nil
	}

	if mod != starlark.None {
		return nil, fmt.Errorf("%s: 3-argument form requires integers", b.Name())
	}
	fb, ok1 := starlark.AsFloat(base)
	fe, ok2 := starlark.AsFloat(exp)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%s: unsupported operands %s and %s", b.Name(), base.Type(), exp.Type())
	}
	if fb == 0 && fe < 0 {
		return nil, fmt.Errorf("%s: zero to a negative power", b.Name())
	}
	return starlark.Float(math.Pow(fb, fe)), nil
}

func divmod(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, y starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &y); err != nil {
		return nil, err
	}
	q, err := starlark.Binary(syntax.SLASHSLASH, x, y)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}
	r, err := starlark.Binary(syntax.PERCENT, x, y)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}
	return starlark.Tuple{q, r}, nil
}

func formatInt(prefix string, base int) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x starlark.Int
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
			return nil, err
		}
		n := x.BigInt()
		sign := ""
		if n.Sign() < 0 {
			sign = "-"
			n.Neg(n)
		}
		return starlark.String(sign + prefix + n.Text(base)), nil
	}
}

// mapFn applies fn across one or more iterables, stopping at the shortest.
// The result is a list; the interpreter has no lazy iterators.
func mapFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	if len(args) < 2 {
		return nil, fmt.Errorf("%s: got %d arguments, want at least 2", b.Name(), len(args))
	}
	fn, ok := args[0].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want callable", b.Name(), args[0].Type())
	}

	iters := make([]starlark.Iterator, 0, len(args)-1)
	defer func() {
		for _, it := range iters {
			it.Done()
		}
	}()
	for _, a := range args[1:] {
		iterable, ok := a.(starlark.Iterable)
		if !ok {
			return nil, fmt.Errorf("%s: got %s, want iterable", b.Name(), a.Type())
		}
		iters = append(iters, iterable.Iterate())
	}

	var out []starlark.Value
	for {
		call := make(starlark.Tuple, len(iters))
		for i, it := range iters {
			if !it.Next(&call[i]) {
				return starlark.NewList(out), nil
			}
		}
		v, err := starlark.Call(thread, fn, call, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// filter keeps the elements for which fn is truthy. A None fn keeps the
// truthy elements themselves.
func filter(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Value
	var iterable starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &fn, &iterable); err != nil {
		return nil, err
	}
	var call starlark.Callable
	if fn != starlark.None {
		c, ok := fn.(starlark.Callable)
		if !ok {
			return nil, fmt.Errorf("%s: got %s, want callable or None", b.Name(), fn.Type())
		}
		call = c
	}

	iter := iterable.Iterate()
	defer iter.Done()

	var out []starlark.Value
	var x starlark.Value
	for iter.Next(&x) {
		keep := x
		if call != nil {
			v, err := starlark.Call(thread, call, starlark.Tuple{x}, nil)
			if err != nil {
				return nil, err
			}
			keep = v
		}
		if keep.Truth() {
			out = append(out, x)
		}
	}
	return starlark.NewList(out), nil
}

// importModule loads any registered module by name, ignoring the module
// allow-list. Policies must acknowledge it explicitly.
func importModule(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	s := sessionOf(thread)
	if s == nil || s.importer == nil {
		return nil, fmt.Errorf("%s: no active session", b.Name())
	}
	return s.importer(name)
}

// newType returns a constructor for struct values tagged with name.
func newType(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	tag := starlark.String(name)
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%s: unexpected positional arguments", fn.Name())
		}
		return starlarkstruct.FromKeywords(tag, kwargs), nil
	}), nil
}
