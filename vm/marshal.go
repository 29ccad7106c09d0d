package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Argument checking
// ---------------------------------------------------------------------------

// Args checks the arguments of a native against format and stores them
// through dests, one per format letter:
//
//	i  int64        f  float64 (ints promoted)   n  float64, any number
//	s  string       o  Object                    d  *Map
//	a  *Array       u  *File                     p  *Ptr
//	r  *Regexp      -  skipped, any kind          *  the rest are optional
//
// An uppercase letter means the argument is a pointer and the value is
// fetched through it.
func (vm *VM) Args(args []Object, format string, dests ...any) error {
	required := strings.IndexByte(format, '*')
	letters := strings.ReplaceAll(format, "*", "")
	if required < 0 {
		required = len(letters)
		if len(args) != required {
			return vm.ArgCountError(len(args), required)
		}
	} else if len(args) < required || len(args) > len(letters) {
		want := required
		if len(args) > len(letters) {
			want = len(letters)
		}
		return vm.ArgCountError(len(args), want)
	}

	d := 0
	for i, c := range []byte(letters) {
		if i >= len(args) {
			break
		}
		if c == '-' {
			continue
		}
		arg := args[i]
		if c >= 'A' && c <= 'Z' {
			p, ok := arg.(*Ptr)
			if !ok {
				return vm.ArgError(i, arg)
			}
			v, err := vm.Fetch(p.Aggr, p.Key)
			if err != nil {
				return err
			}
			arg = v
			c += 'a' - 'A'
		}
		if d >= len(dests) {
			return fmt.Errorf("internal error: no destination for argument %d of %s", i+1, vm.nativeName())
		}
		if !storeArg(c, arg, dests[d]) {
			return vm.ArgError(i, args[i])
		}
		d++
	}
	return nil
}

func storeArg(c byte, arg Object, dest any) bool {
	switch c {
	case 'i':
		x, ok := arg.(*Int)
		if ok {
			*dest.(*int64) = x.V
		}
		return ok
	case 'f', 'n':
		switch x := arg.(type) {
		case *Float:
			*dest.(*float64) = x.V
			return true
		case *Int:
			*dest.(*float64) = float64(x.V)
			return true
		}
		return false
	case 's':
		x, ok := arg.(*String)
		if ok {
			*dest.(*string) = x.S
		}
		return ok
	case 'o':
		*dest.(*Object) = arg
		return true
	case 'd':
		x, ok := arg.(*Map)
		if ok {
			*dest.(**Map) = x
		}
		return ok
	case 'a':
		x, ok := arg.(*Array)
		if ok {
			*dest.(**Array) = x
		}
		return ok
	case 'u':
		x, ok := arg.(*File)
		if ok {
			*dest.(**File) = x
		}
		return ok
	case 'p':
		x, ok := arg.(*Ptr)
		if ok {
			*dest.(**Ptr) = x
		}
		return ok
	case 'r':
		x, ok := arg.(*Regexp)
		if ok {
			*dest.(**Regexp) = x
		}
		return ok
	}
	return false
}

// ToObject converts a Go value to a script value with a new reference.
// Supported kinds: nil, bool, integers, float64, string, []byte and Object.
func (vm *VM) ToObject(v any) (Object, error) {
	switch x := v.(type) {
	case nil:
		return Null, nil
	case Object:
		x.Head().Incref()
		return x, nil
	case bool:
		return vm.Bool(x), nil
	case int:
		return vm.NewInt(int64(x)), nil
	case int64:
		return vm.NewInt(x), nil
	case float64:
		return vm.NewFloat(x), nil
	case string:
		return vm.NewString(x), nil
	case []byte:
		m := vm.NewMem(len(x))
		copy(m.B, x)
		return m, nil
	}
	return nil, fmt.Errorf("cannot convert %T to a script value", v)
}

// Invoke converts args with ToObject and calls callable with them.
func (vm *VM) Invoke(callable Object, args ...any) (Object, error) {
	objs := make([]Object, 0, len(args))
	defer func() {
		for _, o := range objs {
			o.Head().Decref()
		}
	}()
	for _, a := range args {
		o, err := vm.ToObject(a)
		if err != nil {
			return nil, err
		}
		objs = append(objs, o)
	}
	return vm.Call(callable, objs...)
}

// ---------------------------------------------------------------------------
// Formatted output
// ---------------------------------------------------------------------------

// Sprintf formats args under a printf-style format.
func (vm *VM) Sprintf(format string, args []Object) (string, error) {
	var b strings.Builder
	next := 0
	take := func() (Object, error) {
		if next >= len(args) {
			return nil, fmt.Errorf("not enough arguments to %s", vm.nativeName())
		}
		next++
		return args[next-1], nil
	}
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(format) && strings.IndexByte("-+ #0", format[j]) >= 0 {
			j++
		}
		spec := []byte(format[i:j])
		for _, part := range []bool{true, false} {
			if !part {
				if j >= len(format) || format[j] != '.' {
					break
				}
				spec = append(spec, '.')
				j++
			}
			if j < len(format) && format[j] == '*' {
				o, err := take()
				if err != nil {
					return "", err
				}
				n, ok := o.(*Int)
				if !ok {
					return "", fmt.Errorf("non-integer width in %s", vm.nativeName())
				}
				spec = strconv.AppendInt(spec, n.V, 10)
				j++
				continue
			}
			for j < len(format) && format[j] >= '0' && format[j] <= '9' {
				spec = append(spec, format[j])
				j++
			}
		}
		if j >= len(format) {
			return "", fmt.Errorf("incomplete format in %s", vm.nativeName())
		}
		verb := format[j]
		i = j
		if verb == '%' {
			b.WriteByte('%')
			continue
		}
		o, err := take()
		if err != nil {
			return "", err
		}
		switch verb {
		case 'd', 'i', 'x', 'X', 'o':
			var v int64
			switch x := o.(type) {
			case *Int:
				v = x.V
			case *Float:
				v = int64(x.V)
			default:
				return "", fmt.Errorf("attempt to use %s with %%%c", TypeName(o), verb)
			}
			if verb == 'i' {
				verb = 'd'
			}
			fmt.Fprintf(&b, string(append(spec, verb)), v)
		case 'c':
			x, ok := o.(*Int)
			if !ok {
				return "", fmt.Errorf("attempt to use %s with %%c", TypeName(o))
			}
			fmt.Fprintf(&b, string(append(spec, 'c')), rune(x.V))
		case 's':
			s, ok := o.(*String)
			var v string
			if ok {
				v = s.S
			} else {
				v = vm.ObjName(o)
			}
			fmt.Fprintf(&b, string(append(spec, 's')), v)
		case 'f', 'e', 'E', 'g', 'G':
			var v float64
			switch x := o.(type) {
			case *Float:
				v = x.V
			case *Int:
				v = float64(x.V)
			default:
				return "", fmt.Errorf("attempt to use %s with %%%c", TypeName(o), verb)
			}
			fmt.Fprintf(&b, string(append(spec, verb)), v)
		default:
			return "", fmt.Errorf("unknown format %%%c in %s", verb, vm.nativeName())
		}
	}
	return b.String(), nil
}
