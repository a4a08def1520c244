package schema

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// Apply defines every module-owned option of s on fs. Host options are
// expected to be defined by the caller already. s stays valid.
func (s *Schema) Apply(fs *pflag.FlagSet) error {
	if !s.Valid() {
		return ErrSchemaMoved
	}
	for _, o := range s.state.Options {
		if o.Owner == HostOwner {
			continue
		}
		if fs.Lookup(o.Name) != nil {
			return fmt.Errorf("option --%s from %s is already defined", o.Name, o.Owner)
		}
		if err := define(fs, o); err != nil {
			return fmt.Errorf("failed to define option --%s: %w", o.Name, err)
		}
		fs.SetAnnotation(o.Name, "owner", []string{o.Owner})
	}
	return nil
}

func define(fs *pflag.FlagSet, o Option) error {
	usage := o.Usage
	switch o.Kind {
	case KindString:
		fs.StringP(o.Name, o.Shorthand, o.Default, usage)
	case KindBool:
		v, err := parseOr(o.Default, false, strconv.ParseBool)
		if err != nil {
			return err
		}
		fs.BoolP(o.Name, o.Shorthand, v, usage)
	case KindInt:
		v, err := parseOr(o.Default, 0, strconv.Atoi)
		if err != nil {
			return err
		}
		fs.IntP(o.Name, o.Shorthand, v, usage)
	case KindUint64:
		v, err := parseOr(o.Default, 0, func(s string) (uint64, error) { return strconv.ParseUint(s, 0, 64) })
		if err != nil {
			return err
		}
		fs.Uint64P(o.Name, o.Shorthand, v, usage)
	case KindFloat64:
		v, err := parseOr(o.Default, 0, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
		if err != nil {
			return err
		}
		fs.Float64P(o.Name, o.Shorthand, v, usage)
	case KindDuration:
		v, err := parseOr(o.Default, 0, time.ParseDuration)
		if err != nil {
			return err
		}
		fs.DurationP(o.Name, o.Shorthand, v, usage)
	default:
		return fmt.Errorf("unknown kind %s", o.Kind)
	}
	return nil
}

func parseOr[T any](s string, zero T, parse func(string) (T, error)) (T, error) {
	if s == "" {
		return zero, nil
	}
	return parse(s)
}

// Args holds parsed option values keyed by option name. It is a plain value
// so it can be handed to modules in another process.
type Args struct {
	Values   map[string]string
	Explicit map[string]bool
}

// ArgsFromFlags captures the values of every option in s from a parsed fs.
// Options missing from fs take their schema default.
func ArgsFromFlags(fs *pflag.FlagSet, s *Schema) (Args, error) {
	if !s.Valid() {
		return Args{}, ErrSchemaMoved
	}
	args := Args{Values: map[string]string{}, Explicit: map[string]bool{}}
	for _, o := range s.state.Options {
		f := fs.Lookup(o.Name)
		if f == nil {
			args.Values[o.Name] = o.Default
			continue
		}
		args.Values[o.Name] = f.Value.String()
		args.Explicit[o.Name] = f.Changed
	}
	return args, nil
}

// IsSet reports whether the option was given on the command line.
func (a Args) IsSet(name string) bool {
	return a.Explicit[name]
}

// Lookup returns the raw value of an option.
func (a Args) Lookup(name string) (string, bool) {
	v, ok := a.Values[name]
	return v, ok
}

// String returns the value of a string option.
func (a Args) String(name string) (string, error) {
	v, ok := a.Values[name]
	if !ok {
		return "", undefined(name)
	}
	return v, nil
}

// Bool returns the value of a bool option.
func (a Args) Bool(name string) (bool, error) {
	return typed(a, name, false, strconv.ParseBool)
}

// Int returns the value of an int option.
func (a Args) Int(name string) (int, error) {
	return typed(a, name, 0, strconv.Atoi)
}

// Uint64 returns the value of a uint64 option.
func (a Args) Uint64(name string) (uint64, error) {
	return typed(a, name, 0, func(s string) (uint64, error) { return strconv.ParseUint(s, 0, 64) })
}

// Float64 returns the value of a float64 option.
func (a Args) Float64(name string) (float64, error) {
	return typed(a, name, 0, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// Duration returns the value of a duration option.
func (a Args) Duration(name string) (time.Duration, error) {
	return typed(a, name, 0, time.ParseDuration)
}

func typed[T any](a Args, name string, zero T, parse func(string) (T, error)) (T, error) {
	raw, ok := a.Values[name]
	if !ok {
		return zero, undefined(name)
	}
	v, err := parseOr(raw, zero, parse)
	if err != nil {
		return zero, fmt.Errorf("option --%s: %w", name, err)
	}
	return v, nil
}

func undefined(name string) error {
	return fmt.Errorf("option --%s is not defined", name)
}
