package registry

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lschmierer/fhirpath-go/internal/typesystem"
	"github.com/lschmierer/fhirpath-go/internal/value"
)

// Evaluator is a callback shape for evaluating a subexpression against a
// per-item focus. No registered Thunk receives one: Thunks get already
// evaluated Sequences, and the functions whose arguments must be
// re-evaluated per item with $this rebound (where/select/all/exists/
// repeat/iif/trace/defineVariable) are evaluated by the interpreter and
// the compiler themselves; their entries here are only stubs (see
// registerIterationStubs).
type Evaluator func(focus value.Sequence) (value.Sequence, error)

// Standard builds the registry of every operator and function named in
// spec.md §4.4. It is built once and shared by every pipeline.
func Standard() *Registry {
	r := New()
	registerArithmetic(r)
	registerComparison(r)
	registerBoolean(r)
	registerStringOps(r)
	registerMath(r)
	registerCollectionOps(r)
	registerExistence(r)
	registerConversions(r)
	registerSubsetting(r)
	registerMisc(r)
	registerTypeOps(r)
	registerIterationStubs(r)
	return r
}

// DynamicTypeName reports the runtime type name of a value — a resource's
// own resourceType if present, else the canonical FHIRPath primary for Go
// scalars — used by 'is'/'as' and ofType() alike so the three call sites
// agree on what "the type of this value" means (spec.md §9).
func DynamicTypeName(item any) string {
	if obj, ok := item.(map[string]any); ok {
		if rt, ok := obj["resourceType"].(string); ok {
			return rt
		}
	}
	switch item.(type) {
	case int64:
		return "Integer"
	case float64:
		return "Decimal"
	case bool:
		return "Boolean"
	case string:
		return "String"
	case value.Quantity:
		return "Quantity"
	case value.Temporal:
		return "DateTime"
	default:
		return "Any"
	}
}

func numeric(v any) (float64, bool, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true, true
	case float64:
		return n, false, true
	default:
		return 0, false, false
	}
}

func registerArithmetic(r *Registry) {
	register := func(name string, fn func(a, b any) (any, error)) {
		r.Register(&Entry{
			Name:       name,
			IsOperator: true,
			Arity:      Arity{2, 2},
			Signatures: []Signature{{Result: typesystem.SingletonOf(typesystem.Decimal)}},
			Impl: binaryNumericThunk(name, fn),
		})
	}
	register("+", func(a, b any) (any, error) { return addValues(a, b) })
	register("-", func(a, b any) (any, error) {
		af, aInt, aOk := numeric(a)
		bf, bInt, bOk := numeric(b)
		if !aOk || !bOk {
			return nil, fmt.Errorf("operator - requires numeric operands")
		}
		if aInt && bInt {
			return int64(af) - int64(bf), nil
		}
		return af - bf, nil
	})
	register("*", func(a, b any) (any, error) {
		af, aInt, aOk := numeric(a)
		bf, bInt, bOk := numeric(b)
		if !aOk || !bOk {
			return nil, fmt.Errorf("operator * requires numeric operands")
		}
		if aInt && bInt {
			return int64(af) * int64(bf), nil
		}
		return af * bf, nil
	})
	register("/", func(a, b any) (any, error) {
		af, _, aOk := numeric(a)
		bf, _, bOk := numeric(b)
		if !aOk || !bOk {
			return nil, fmt.Errorf("operator / requires numeric operands")
		}
		if bf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return af / bf, nil
	})
	register("div", func(a, b any) (any, error) {
		af, _, aOk := numeric(a)
		bf, _, bOk := numeric(b)
		if !aOk || !bOk {
			return nil, fmt.Errorf("operator div requires numeric operands")
		}
		if bf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return int64(af) / int64(bf), nil
	})
	register("mod", func(a, b any) (any, error) {
		af, _, aOk := numeric(a)
		bf, _, bOk := numeric(b)
		if !aOk || !bOk {
			return nil, fmt.Errorf("operator mod requires numeric operands")
		}
		if bf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return int64(af) % int64(bf), nil
	})
}

func addValues(a, b any) (any, error) {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as + bs, nil
		}
	}
	af, aInt, aOk := numeric(a)
	bf, bInt, bOk := numeric(b)
	if !aOk || !bOk {
		return nil, fmt.Errorf("operator + requires numeric or string operands")
	}
	if aInt && bInt {
		return int64(af) + int64(bf), nil
	}
	return af + bf, nil
}

func binaryNumericThunk(name string, fn func(a, b any) (any, error)) Thunk {
	return func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		if err := checkArity(name, args, Arity{2, 2}); err != nil {
			return nil, err
		}
		la, emptyA, multiA := value.PromoteSingleton(args[0])
		lb, emptyB, multiB := value.PromoteSingleton(args[1])
		if multiA || multiB {
			return nil, fmt.Errorf("operator %s requires singleton operands", name)
		}
		if emptyA || emptyB {
			return value.Empty(), nil
		}
		out, err := fn(la, lb)
		if err != nil {
			return nil, err
		}
		return value.Single(out), nil
	}
}

func registerComparison(r *Registry) {
	cmp := func(name string, pred func(c int) bool) {
		r.Register(&Entry{
			Name:       name,
			IsOperator: true,
			Arity:      Arity{2, 2},
			Signatures: []Signature{{Result: typesystem.SingletonOf(typesystem.Boolean)}},
			Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
				if err := checkArity(name, args, Arity{2, 2}); err != nil {
					return nil, err
				}
				a, emptyA, multiA := value.PromoteSingleton(args[0])
				b, emptyB, multiB := value.PromoteSingleton(args[1])
				if multiA || multiB {
					return nil, fmt.Errorf("operator %s requires singleton operands", name)
				}
				if emptyA || emptyB {
					return value.Empty(), nil
				}
				c, ok := compareValues(a, b)
				if !ok {
					return nil, fmt.Errorf("operator %s: operands of type %T and %T are not comparable", name, a, b)
				}
				return value.Single(pred(c)), nil
			},
		})
	}
	cmp("<", func(c int) bool { return c < 0 })
	cmp("<=", func(c int) bool { return c <= 0 })
	cmp(">", func(c int) bool { return c > 0 })
	cmp(">=", func(c int) bool { return c >= 0 })

	r.Register(&Entry{Name: "=", IsOperator: true, Arity: Arity{2, 2}, Impl: equalityThunk("=", false)})
	r.Register(&Entry{Name: "!=", IsOperator: true, Arity: Arity{2, 2}, Impl: equalityThunk("!=", true)})
	r.Register(&Entry{Name: "~", IsOperator: true, Arity: Arity{2, 2}, Impl: equivalenceThunk("~", false)})
	r.Register(&Entry{Name: "!~", IsOperator: true, Arity: Arity{2, 2}, Impl: equivalenceThunk("!~", true)})
}

func compareValues(a, b any) (int, bool) {
	af, aIsNum, aOk := numeric(a)
	bf, bIsNum, bOk := numeric(b)
	_ = aIsNum
	_ = bIsNum
	if aOk && bOk {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aOk := a.(string)
	bs, bOk := b.(string)
	if aOk && bOk {
		return strings.Compare(as, bs), true
	}
	at, aOk := a.(value.Temporal)
	bt, bOk := b.(value.Temporal)
	if aOk && bOk {
		return strings.Compare(at.ISO, bt.ISO), true
	}
	return 0, false
}

func equalityThunk(name string, negate bool) Thunk {
	return func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		if err := checkArity(name, args, Arity{2, 2}); err != nil {
			return nil, err
		}
		a, b := args[0], args[1]
		if a.IsEmpty() || b.IsEmpty() {
			return value.Empty(), nil
		}
		if len(a) != len(b) {
			return value.Single(negate), nil
		}
		eq := true
		for i := range a {
			if !value.Equal(a[i], b[i]) {
				eq = false
				break
			}
		}
		if negate {
			eq = !eq
		}
		return value.Single(eq), nil
	}
}

func equivalenceThunk(name string, negate bool) Thunk {
	return func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		if err := checkArity(name, args, Arity{2, 2}); err != nil {
			return nil, err
		}
		a, b := args[0], args[1]
		eq := len(a) == len(b)
		if eq {
			for i := range a {
				if !value.Equal(a[i], b[i]) {
					eq = false
					break
				}
			}
		}
		if negate {
			eq = !eq
		}
		return value.Single(eq), nil
	}
}

// registerBoolean implements the three-valued and/or/xor/implies/not
// truth tables from spec.md §4.6.
func registerBoolean(r *Registry) {
	b3 := func(s value.Sequence) (value.Bool3, error) { return value.ToBool3(s) }

	r.Register(&Entry{Name: "and", IsOperator: true, Arity: Arity{2, 2}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		a, err := b3(args[0])
		if err != nil {
			return nil, err
		}
		b, err := b3(args[1])
		if err != nil {
			return nil, err
		}
		if a != nil && !*a || b != nil && !*b {
			return value.FromBool3(value.False3()), nil
		}
		if a != nil && *a && b != nil && *b {
			return value.FromBool3(value.True3()), nil
		}
		return value.Empty(), nil
	}})

	r.Register(&Entry{Name: "or", IsOperator: true, Arity: Arity{2, 2}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		a, err := b3(args[0])
		if err != nil {
			return nil, err
		}
		b, err := b3(args[1])
		if err != nil {
			return nil, err
		}
		if a != nil && *a || b != nil && *b {
			return value.FromBool3(value.True3()), nil
		}
		if a != nil && !*a && b != nil && !*b {
			return value.FromBool3(value.False3()), nil
		}
		return value.Empty(), nil
	}})

	r.Register(&Entry{Name: "xor", IsOperator: true, Arity: Arity{2, 2}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		a, err := b3(args[0])
		if err != nil {
			return nil, err
		}
		b, err := b3(args[1])
		if err != nil {
			return nil, err
		}
		if a == nil || b == nil {
			return value.Empty(), nil
		}
		return value.FromBool3(value.Bool3(boolPtr(*a != *b))), nil
	}})

	r.Register(&Entry{Name: "implies", IsOperator: true, Arity: Arity{2, 2}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		a, err := b3(args[0])
		if err != nil {
			return nil, err
		}
		if a != nil && !*a {
			return value.FromBool3(value.True3()), nil
		}
		b, err := b3(args[1])
		if err != nil {
			return nil, err
		}
		if b != nil && *b {
			return value.FromBool3(value.True3()), nil
		}
		if a != nil && *a && b != nil && !*b {
			return value.FromBool3(value.False3()), nil
		}
		return value.Empty(), nil
	}})

	r.Register(&Entry{Name: "not", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		b, err := b3(ctx.Focus())
		if err != nil {
			return nil, err
		}
		if b == nil {
			return value.Empty(), nil
		}
		return value.FromBool3(boolPtr(!*b)), nil
	}})
}

func boolPtr(b bool) *bool { return &b }

// stringOperand promotes a singleton string operand, treating an empty
// sequence as "" per spec.md §4.4's `&` contract ("unlike +, & will
// concatenate empty operands as empty strings"), and rejecting anything
// non-singleton or non-string rather than silently coercing it away.
func stringOperand(name string, a value.Sequence) (string, error) {
	item, empty, multi := value.PromoteSingleton(a)
	if multi {
		return "", fmt.Errorf("operator %s requires singleton operands", name)
	}
	if empty {
		return "", nil
	}
	s, ok := item.(string)
	if !ok {
		return "", fmt.Errorf("operator %s requires String operands, got %T", name, item)
	}
	return s, nil
}

// focusString reads ctx.Focus() as a singleton String, the implicit
// receiver every §4.4 string function operates on.
func focusString(ctx *Context) (s string, empty bool, err error) {
	item, empty, multi := value.PromoteSingleton(ctx.Focus())
	if multi {
		return "", false, fmt.Errorf("string function requires a singleton input")
	}
	if empty {
		return "", true, nil
	}
	s, ok := item.(string)
	if !ok {
		return "", false, fmt.Errorf("string function requires a String input, got %T", item)
	}
	return s, false, nil
}

// argString reads args[i] as a singleton String argument, treating an
// empty sequence as "missing" rather than "".
func argString(name string, args []value.Sequence, i int) (s string, empty bool, err error) {
	item, empty, multi := value.PromoteSingleton(args[i])
	if multi {
		return "", false, fmt.Errorf("%s requires a singleton string argument", name)
	}
	if empty {
		return "", true, nil
	}
	s, ok := item.(string)
	if !ok {
		return "", false, fmt.Errorf("%s requires a string argument, got %T", name, item)
	}
	return s, false, nil
}

// registerStringOps implements the strings group from spec.md §4.4:
// length, substring, startsWith, endsWith, indexOf, upper, lower,
// replace, trim, split, toChars, plus the `&` concatenation operator.
func registerStringOps(r *Registry) {
	r.Register(&Entry{Name: "&", IsOperator: true, Arity: Arity{2, 2},
		Signatures: []Signature{{Result: typesystem.SingletonOf(typesystem.String)}},
		Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
			if err := checkArity("&", args, Arity{2, 2}); err != nil {
				return nil, err
			}
			as, err := stringOperand("&", args[0])
			if err != nil {
				return nil, err
			}
			bs, err := stringOperand("&", args[1])
			if err != nil {
				return nil, err
			}
			return value.Single(as + bs), nil
		}})

	r.Register(&Entry{Name: "length", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		s, empty, err := focusString(ctx)
		if err != nil {
			return nil, err
		}
		if empty {
			return value.Empty(), nil
		}
		return value.Single(int64(len([]rune(s)))), nil
	}})

	r.Register(&Entry{Name: "upper", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		s, empty, err := focusString(ctx)
		if err != nil {
			return nil, err
		}
		if empty {
			return value.Empty(), nil
		}
		return value.Single(strings.ToUpper(s)), nil
	}})

	r.Register(&Entry{Name: "lower", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		s, empty, err := focusString(ctx)
		if err != nil {
			return nil, err
		}
		if empty {
			return value.Empty(), nil
		}
		return value.Single(strings.ToLower(s)), nil
	}})

	r.Register(&Entry{Name: "trim", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		s, empty, err := focusString(ctx)
		if err != nil {
			return nil, err
		}
		if empty {
			return value.Empty(), nil
		}
		return value.Single(strings.TrimSpace(s)), nil
	}})

	r.Register(&Entry{Name: "toChars", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		s, empty, err := focusString(ctx)
		if err != nil {
			return nil, err
		}
		if empty {
			return value.Empty(), nil
		}
		out := make(value.Sequence, 0, len(s))
		for _, c := range s {
			out = append(out, string(c))
		}
		return out, nil
	}})

	r.Register(&Entry{Name: "startsWith", Arity: Arity{1, 1}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		if err := checkArity("startsWith", args, Arity{1, 1}); err != nil {
			return nil, err
		}
		s, empty, err := focusString(ctx)
		if err != nil {
			return nil, err
		}
		if empty {
			return value.Empty(), nil
		}
		prefix, pEmpty, err := argString("startsWith", args, 0)
		if err != nil {
			return nil, err
		}
		if pEmpty {
			return value.Empty(), nil
		}
		return value.Single(strings.HasPrefix(s, prefix)), nil
	}})

	r.Register(&Entry{Name: "endsWith", Arity: Arity{1, 1}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		if err := checkArity("endsWith", args, Arity{1, 1}); err != nil {
			return nil, err
		}
		s, empty, err := focusString(ctx)
		if err != nil {
			return nil, err
		}
		if empty {
			return value.Empty(), nil
		}
		suffix, sEmpty, err := argString("endsWith", args, 0)
		if err != nil {
			return nil, err
		}
		if sEmpty {
			return value.Empty(), nil
		}
		return value.Single(strings.HasSuffix(s, suffix)), nil
	}})

	r.Register(&Entry{Name: "indexOf", Arity: Arity{1, 1}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		if err := checkArity("indexOf", args, Arity{1, 1}); err != nil {
			return nil, err
		}
		s, empty, err := focusString(ctx)
		if err != nil {
			return nil, err
		}
		if empty {
			return value.Empty(), nil
		}
		sub, subEmpty, err := argString("indexOf", args, 0)
		if err != nil {
			return nil, err
		}
		if subEmpty {
			return value.Empty(), nil
		}
		return value.Single(int64(strings.Index(s, sub))), nil
	}})

	r.Register(&Entry{Name: "replace", Arity: Arity{2, 2}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		if err := checkArity("replace", args, Arity{2, 2}); err != nil {
			return nil, err
		}
		s, empty, err := focusString(ctx)
		if err != nil {
			return nil, err
		}
		if empty {
			return value.Empty(), nil
		}
		pattern, pEmpty, err := argString("replace", args, 0)
		if err != nil {
			return nil, err
		}
		repl, rEmpty, err := argString("replace", args, 1)
		if err != nil {
			return nil, err
		}
		if pEmpty || rEmpty {
			return value.Empty(), nil
		}
		return value.Single(strings.ReplaceAll(s, pattern, repl)), nil
	}})

	r.Register(&Entry{Name: "split", Arity: Arity{1, 1}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		if err := checkArity("split", args, Arity{1, 1}); err != nil {
			return nil, err
		}
		s, empty, err := focusString(ctx)
		if err != nil {
			return nil, err
		}
		if empty {
			return value.Empty(), nil
		}
		sep, sepEmpty, err := argString("split", args, 0)
		if err != nil {
			return nil, err
		}
		if sepEmpty {
			return value.Empty(), nil
		}
		parts := strings.Split(s, sep)
		out := make(value.Sequence, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	}})

	r.Register(&Entry{Name: "substring", Arity: Arity{1, 2}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		if err := checkArity("substring", args, Arity{1, 2}); err != nil {
			return nil, err
		}
		s, empty, err := focusString(ctx)
		if err != nil {
			return nil, err
		}
		if empty {
			return value.Empty(), nil
		}
		runes := []rune(s)
		startItem, startEmpty, startMulti := value.PromoteSingleton(args[0])
		if startMulti {
			return nil, fmt.Errorf("substring requires a singleton start index")
		}
		if startEmpty {
			return value.Empty(), nil
		}
		start, ok := startItem.(int64)
		if !ok {
			return nil, fmt.Errorf("substring requires an integer start index, got %T", startItem)
		}
		if start < 0 || int(start) >= len(runes) {
			return value.Empty(), nil
		}
		length := int64(len(runes)) - start
		if len(args) == 2 {
			lenItem, lenEmpty, lenMulti := value.PromoteSingleton(args[1])
			if lenMulti {
				return nil, fmt.Errorf("substring requires a singleton length")
			}
			if !lenEmpty {
				l, ok := lenItem.(int64)
				if !ok {
					return nil, fmt.Errorf("substring requires an integer length, got %T", lenItem)
				}
				if l < 0 {
					l = 0
				}
				if l < length {
					length = l
				}
			}
		}
		return value.Single(string(runes[start : start+length])), nil
	}})
}

func registerCollectionOps(r *Registry) {
	r.Register(&Entry{Name: "|", IsOperator: true, Arity: Arity{2, 2}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		return distinctPreserveOrder(value.Concat(args[0], args[1])), nil
	}})
	r.Register(&Entry{Name: "union", Arity: Arity{1, 1}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		return distinctPreserveOrder(value.Concat(ctx.Focus(), args[0])), nil
	}})
	r.Register(&Entry{Name: "combine", Arity: Arity{1, 1}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		return value.Concat(ctx.Focus(), args[0]), nil
	}})
	r.Register(&Entry{Name: "intersect", Arity: Arity{1, 1}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		var out value.Sequence
		for _, item := range ctx.Focus() {
			for _, other := range args[0] {
				if value.Equal(item, other) {
					out = append(out, item)
					break
				}
			}
		}
		return distinctPreserveOrder(out), nil
	}})
	r.Register(&Entry{Name: "exclude", Arity: Arity{1, 1}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		var out value.Sequence
		for _, item := range ctx.Focus() {
			found := false
			for _, other := range args[0] {
				if value.Equal(item, other) {
					found = true
					break
				}
			}
			if !found {
				out = append(out, item)
			}
		}
		return out, nil
	}})
	r.Register(&Entry{Name: "in", IsOperator: true, Arity: Arity{2, 2}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		item, empty, multi := value.PromoteSingleton(args[0])
		if multi {
			return nil, fmt.Errorf("operator in requires a singleton left operand")
		}
		if empty {
			return value.Empty(), nil
		}
		for _, other := range args[1] {
			if value.Equal(item, other) {
				return value.Single(true), nil
			}
		}
		return value.Single(false), nil
	}})
	r.Register(&Entry{Name: "contains", IsOperator: true, Arity: Arity{2, 2}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		item, empty, multi := value.PromoteSingleton(args[1])
		if multi {
			return nil, fmt.Errorf("operator contains requires a singleton right operand")
		}
		if empty {
			return value.Empty(), nil
		}
		for _, other := range args[0] {
			if value.Equal(item, other) {
				return value.Single(true), nil
			}
		}
		return value.Single(false), nil
	}})
	r.Register(&Entry{Name: "distinct", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		return distinctPreserveOrder(ctx.Focus()), nil
	}})
	r.Register(&Entry{Name: "isDistinct", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		return value.Single(len(distinctPreserveOrder(ctx.Focus())) == len(ctx.Focus())), nil
	}})
}

func distinctPreserveOrder(s value.Sequence) value.Sequence {
	var out value.Sequence
	for _, item := range s {
		dup := false
		for _, seen := range out {
			if value.Equal(item, seen) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, item)
		}
	}
	return out
}

func registerExistence(r *Registry) {
	r.Register(&Entry{Name: "empty", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		return value.Single(ctx.Focus().IsEmpty()), nil
	}})
	r.Register(&Entry{Name: "count", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		return value.Single(int64(len(ctx.Focus()))), nil
	}})

	r.Register(&Entry{Name: "allTrue", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		for _, item := range ctx.Focus() {
			b, ok := item.(bool)
			if !ok {
				return nil, fmt.Errorf("allTrue requires a collection of Boolean, got %T", item)
			}
			if !b {
				return value.Single(false), nil
			}
		}
		return value.Single(true), nil
	}})
	r.Register(&Entry{Name: "anyTrue", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		for _, item := range ctx.Focus() {
			b, ok := item.(bool)
			if !ok {
				return nil, fmt.Errorf("anyTrue requires a collection of Boolean, got %T", item)
			}
			if b {
				return value.Single(true), nil
			}
		}
		return value.Single(false), nil
	}})
	r.Register(&Entry{Name: "allFalse", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		for _, item := range ctx.Focus() {
			b, ok := item.(bool)
			if !ok {
				return nil, fmt.Errorf("allFalse requires a collection of Boolean, got %T", item)
			}
			if b {
				return value.Single(false), nil
			}
		}
		return value.Single(true), nil
	}})
	r.Register(&Entry{Name: "anyFalse", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		for _, item := range ctx.Focus() {
			b, ok := item.(bool)
			if !ok {
				return nil, fmt.Errorf("anyFalse requires a collection of Boolean, got %T", item)
			}
			if !b {
				return value.Single(true), nil
			}
		}
		return value.Single(false), nil
	}})
}

// registerMath implements the math group from spec.md §4.4: abs,
// ceiling, floor, round, sqrt. Each operates on a singleton Integer or
// Decimal focus, matching the numeric-coercion rules registerArithmetic
// already uses.
func registerMath(r *Registry) {
	num := func(fn string, ctx *Context) (v float64, isInt bool, empty bool, err error) {
		item, empty, multi := value.PromoteSingleton(ctx.Focus())
		if multi {
			return 0, false, false, fmt.Errorf("%s requires a singleton numeric input", fn)
		}
		if empty {
			return 0, false, true, nil
		}
		switch n := item.(type) {
		case int64:
			return float64(n), true, false, nil
		case float64:
			return n, false, false, nil
		default:
			return 0, false, false, fmt.Errorf("%s requires a numeric input, got %T", fn, item)
		}
	}

	r.Register(&Entry{Name: "abs", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		v, isInt, empty, err := num("abs", ctx)
		if err != nil || empty {
			return value.Empty(), err
		}
		if isInt {
			return value.Single(int64(math.Abs(v))), nil
		}
		return value.Single(math.Abs(v)), nil
	}})
	r.Register(&Entry{Name: "ceiling", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		v, isInt, empty, err := num("ceiling", ctx)
		if err != nil || empty {
			return value.Empty(), err
		}
		if isInt {
			return value.Single(int64(v)), nil
		}
		return value.Single(int64(math.Ceil(v))), nil
	}})
	r.Register(&Entry{Name: "floor", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		v, isInt, empty, err := num("floor", ctx)
		if err != nil || empty {
			return value.Empty(), err
		}
		if isInt {
			return value.Single(int64(v)), nil
		}
		return value.Single(int64(math.Floor(v))), nil
	}})
	r.Register(&Entry{Name: "sqrt", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		v, _, empty, err := num("sqrt", ctx)
		if err != nil || empty {
			return value.Empty(), err
		}
		if v < 0 {
			return value.Empty(), nil
		}
		return value.Single(math.Sqrt(v)), nil
	}})
	r.Register(&Entry{Name: "round", Arity: Arity{0, 1}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		if err := checkArity("round", args, Arity{0, 1}); err != nil {
			return nil, err
		}
		v, _, empty, err := num("round", ctx)
		if err != nil || empty {
			return value.Empty(), err
		}
		precision := int64(0)
		if len(args) == 1 {
			pItem, pEmpty, pMulti := value.PromoteSingleton(args[0])
			if pMulti {
				return nil, fmt.Errorf("round requires a singleton precision argument")
			}
			if !pEmpty {
				p, ok := pItem.(int64)
				if !ok {
					return nil, fmt.Errorf("round requires an integer precision, got %T", pItem)
				}
				precision = p
			}
		}
		scale := math.Pow(10, float64(precision))
		return value.Single(math.Round(v*scale) / scale), nil
	}})
}

func registerConversions(r *Registry) {
	r.Register(&Entry{Name: "toString", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		item, empty, multi := value.PromoteSingleton(ctx.Focus())
		if empty || multi {
			return value.Empty(), nil
		}
		return value.Single(fmt.Sprintf("%v", item)), nil
	}})
	r.Register(&Entry{Name: "toInteger", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		item, empty, multi := value.PromoteSingleton(ctx.Focus())
		if empty || multi {
			return value.Empty(), nil
		}
		switch v := item.(type) {
		case int64:
			return value.Single(v), nil
		case float64:
			return value.Single(int64(v)), nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return value.Empty(), nil
			}
			return value.Single(n), nil
		case bool:
			if v {
				return value.Single(int64(1)), nil
			}
			return value.Single(int64(0)), nil
		default:
			return value.Empty(), nil
		}
	}})
	r.Register(&Entry{Name: "toDecimal", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		item, empty, multi := value.PromoteSingleton(ctx.Focus())
		if empty || multi {
			return value.Empty(), nil
		}
		switch v := item.(type) {
		case int64:
			return value.Single(float64(v)), nil
		case float64:
			return value.Single(v), nil
		case string:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return value.Empty(), nil
			}
			return value.Single(n), nil
		default:
			return value.Empty(), nil
		}
	}})
	r.Register(&Entry{Name: "toBoolean", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		item, empty, multi := value.PromoteSingleton(ctx.Focus())
		if empty || multi {
			return value.Empty(), nil
		}
		switch v := item.(type) {
		case bool:
			return value.Single(v), nil
		case string:
			switch strings.ToLower(v) {
			case "true", "t", "yes", "y", "1", "1.0":
				return value.Single(true), nil
			case "false", "f", "no", "n", "0", "0.0":
				return value.Single(false), nil
			default:
				return value.Empty(), nil
			}
		case int64:
			switch v {
			case 1:
				return value.Single(true), nil
			case 0:
				return value.Single(false), nil
			default:
				return value.Empty(), nil
			}
		default:
			return value.Empty(), nil
		}
	}})
	r.Register(&Entry{Name: "convertsToBoolean", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		s, err := r.entryOrPanic("toBoolean").Impl(ctx, args)
		if err != nil {
			return nil, err
		}
		return value.Single(!s.IsEmpty()), nil
	}})
}

func (r *Registry) entryOrPanic(name string) *Entry {
	e, ok := r.Lookup(name)
	if !ok {
		panic("registry: missing required entry " + name)
	}
	return e
}

func registerSubsetting(r *Registry) {
	r.Register(&Entry{Name: "first", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		f := ctx.Focus()
		if len(f) == 0 {
			return value.Empty(), nil
		}
		return value.Single(f[0]), nil
	}})
	r.Register(&Entry{Name: "last", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		f := ctx.Focus()
		if len(f) == 0 {
			return value.Empty(), nil
		}
		return value.Single(f[len(f)-1]), nil
	}})
	r.Register(&Entry{Name: "tail", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		f := ctx.Focus()
		if len(f) <= 1 {
			return value.Empty(), nil
		}
		return append(value.Sequence(nil), f[1:]...), nil
	}})
	r.Register(&Entry{Name: "skip", Arity: Arity{1, 1}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		n, _, _ := value.PromoteSingleton(args[0])
		count, _ := n.(int64)
		f := ctx.Focus()
		if int(count) >= len(f) {
			return value.Empty(), nil
		}
		if count < 0 {
			count = 0
		}
		return append(value.Sequence(nil), f[count:]...), nil
	}})
	r.Register(&Entry{Name: "take", Arity: Arity{1, 1}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		n, _, _ := value.PromoteSingleton(args[0])
		count, _ := n.(int64)
		f := ctx.Focus()
		if count < 0 {
			count = 0
		}
		if int(count) > len(f) {
			count = int64(len(f))
		}
		return append(value.Sequence(nil), f[:count]...), nil
	}})
	r.Register(&Entry{Name: "single", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		item, empty, multi := value.PromoteSingleton(ctx.Focus())
		if empty {
			return value.Empty(), nil
		}
		if multi {
			return nil, fmt.Errorf("single() requires the input collection to contain at most one item")
		}
		return value.Single(item), nil
	}})
}

func registerMisc(r *Registry) {
	r.Register(&Entry{Name: "children", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		var out value.Sequence
		for _, item := range ctx.Focus() {
			out = append(out, childrenOf(item)...)
		}
		return out, nil
	}})

	// descendants is the transitive closure of children (spec.md §4.4):
	// repeatedly expand the frontier until no item yields further
	// children, collecting every level in traversal order.
	r.Register(&Entry{Name: "descendants", Arity: Arity{0, 0}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		var out value.Sequence
		frontier := ctx.Focus()
		for len(frontier) > 0 {
			var next value.Sequence
			for _, item := range frontier {
				next = append(next, childrenOf(item)...)
			}
			out = append(out, next...)
			frontier = next
		}
		return out, nil
	}})
}

func childrenOf(item any) value.Sequence {
	obj, ok := item.(map[string]any)
	if !ok {
		return nil
	}
	var out value.Sequence
	for _, k := range value.SortedKeys(obj) {
		out = append(out, flattenChild(obj[k])...)
	}
	return out
}

func flattenChild(v any) value.Sequence {
	if arr, ok := v.([]any); ok {
		out := make(value.Sequence, 0, len(arr))
		out = append(out, arr...)
		return out
	}
	return value.Single(v)
}

// registerTypeOps registers ofType, the §4.5/§8 polymorphic filter: given
// a type name (compiled from the call's TypeReference argument by both
// backends' regular-argument loop, see interpreter.VisitFunction /
// compiler.VisitFunction), keep only the focus items whose dynamic type
// is that type or a subtype of it. With no model provider configured,
// falls back to exact dynamic-type-name equality.
func registerTypeOps(r *Registry) {
	r.Register(&Entry{Name: "ofType", Arity: Arity{1, 1}, Impl: func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
		if err := checkArity("ofType", args, Arity{1, 1}); err != nil {
			return nil, err
		}
		typeName, empty, err := argString("ofType", args, 0)
		if err != nil {
			return nil, err
		}
		if empty {
			return value.Empty(), nil
		}
		mp := ctx.ModelProvider()
		var out value.Sequence
		for _, item := range ctx.Focus() {
			dynName := DynamicTypeName(item)
			matches := dynName == typeName
			if !matches && mp != nil {
				matches = mp.IsSubtype(dynName, typeName)
			}
			if matches {
				out = append(out, item)
			}
		}
		return out, nil
	}})
}

// registerIterationStubs records the name/arity/signature metadata for
// functions whose subexpression arguments must be evaluated once per
// focus item with $this/$index rebound (where/select/all/exists/iif/
// repeat/trace), plus defineVariable, which needs to thread a rebound
// Context out to whatever evaluates next. Both backends special-case
// these names before ever calling Impl — see
// interpreter.evalIterationFunction and compiler.compileIterationFunction
// — so Impl here only runs if a caller reaches the registry directly,
// which is a programming error.
func registerIterationStubs(r *Registry) {
	notDirectlyInvokable := func(name string) Thunk {
		return func(ctx *Context, args []value.Sequence) (value.Sequence, error) {
			return nil, fmt.Errorf("%s() must be evaluated by a backend, not invoked through the registry directly", name)
		}
	}
	r.Register(&Entry{Name: "where", Arity: Arity{1, 1}, Impl: notDirectlyInvokable("where")})
	r.Register(&Entry{Name: "select", Arity: Arity{1, 1}, Impl: notDirectlyInvokable("select")})
	r.Register(&Entry{Name: "all", Arity: Arity{1, 1}, Impl: notDirectlyInvokable("all")})
	r.Register(&Entry{Name: "exists", Arity: Arity{0, 1}, Impl: notDirectlyInvokable("exists")})
	r.Register(&Entry{Name: "iif", Arity: Arity{2, 3}, Impl: notDirectlyInvokable("iif")})
	r.Register(&Entry{Name: "repeat", Arity: Arity{1, 1}, Impl: notDirectlyInvokable("repeat")})
	r.Register(&Entry{Name: "trace", Arity: Arity{1, 2}, Impl: notDirectlyInvokable("trace")})
	r.Register(&Entry{Name: "defineVariable", Arity: Arity{2, 2}, Impl: notDirectlyInvokable("defineVariable")})
}
