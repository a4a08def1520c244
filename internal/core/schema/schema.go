// Package schema models the command-line option schema that hashing modules
// extend while they load.
//
// A Schema is a single-owner handle. Every consuming operation (Transfer,
// Augment, Export) hands the underlying value to a new handle and invalidates
// the receiver, so a module that keeps the handle it was given cannot touch
// the schema after returning it. Using an invalidated handle yields
// ErrSchemaMoved.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// HostOwner owns the options the host registers before any module loads.
const HostOwner = "host"

// ErrSchemaMoved is returned when an invalidated handle is used.
var ErrSchemaMoved = errors.New("schema handle has been moved")

var optionName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// OptionKind is the value type of an option.
type OptionKind int

const (
	KindString OptionKind = iota
	KindBool
	KindInt
	KindUint64
	KindFloat64
	KindDuration
)

func (k OptionKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint64:
		return "uint64"
	case KindFloat64:
		return "float64"
	case KindDuration:
		return "duration"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Option describes one command-line option.
type Option struct {
	Name      string
	Shorthand string
	Kind      OptionKind
	Default   string
	Usage     string
	// Owner is set when the option is merged into a schema.
	Owner string
}

// OptionSet is the list of options a module contributes.
type OptionSet []Option

// ProblemKind classifies a rejected or altered registration.
type ProblemKind int

const (
	DuplicateOption ProblemKind = iota
	InvalidOption
)

func (k ProblemKind) String() string {
	switch k {
	case DuplicateOption:
		return "duplicate option"
	case InvalidOption:
		return "invalid option"
	default:
		return fmt.Sprintf("problem(%d)", int(k))
	}
}

// Problem records a registration that could not be merged as declared.
type Problem struct {
	Kind   ProblemKind
	Option string
	Owner  string
	// Holder is the owner that registered the name first, for duplicates.
	Holder string
	Reason string
}

func (p Problem) String() string {
	switch p.Kind {
	case DuplicateOption:
		return fmt.Sprintf("%s: %s --%s already registered by %s (%s)", p.Owner, p.Kind, p.Option, p.Holder, p.Reason)
	default:
		return fmt.Sprintf("%s: %s --%s: %s", p.Owner, p.Kind, p.Option, p.Reason)
	}
}

// State is the plain value behind a Schema. It is what crosses a process
// boundary.
type State struct {
	Options  []Option
	Problems []Problem
}

// Schema is a single-owner handle over an accumulating option schema. It is
// not safe for concurrent use.
type Schema struct {
	state *State
}

// New creates a schema holding the host's own options.
func New(host OptionSet) *Schema {
	s := &Schema{state: &State{}}
	s.state.merge(HostOwner, host)
	return s
}

// FromState takes ownership of st.
func FromState(st State) *Schema {
	return &Schema{state: &st}
}

// Valid reports whether the handle still owns its schema.
func (s *Schema) Valid() bool {
	return s != nil && s.state != nil
}

// Transfer moves the schema to a new handle and invalidates s.
func (s *Schema) Transfer() (*Schema, error) {
	if !s.Valid() {
		return nil, ErrSchemaMoved
	}
	next := &Schema{state: s.state}
	s.state = nil
	return next, nil
}

// Checkpoint returns an independent copy of the schema. s stays valid.
func (s *Schema) Checkpoint() (*Schema, error) {
	if !s.Valid() {
		return nil, ErrSchemaMoved
	}
	st := s.state.clone()
	return &Schema{state: &st}, nil
}

// Augment consumes s and returns a handle to the schema extended with opts
// registered under owner. The first registration of a name wins: later
// duplicates and malformed options are skipped and recorded as problems.
func (s *Schema) Augment(owner string, opts OptionSet) (*Schema, error) {
	next, err := s.Transfer()
	if err != nil {
		return nil, err
	}
	next.state.merge(owner, opts)
	return next, nil
}

// Export consumes s and returns its value.
func (s *Schema) Export() (State, error) {
	next, err := s.Transfer()
	if err != nil {
		return State{}, err
	}
	return next.state.clone(), nil
}

// Options returns the merged options in registration order. An invalidated
// handle has none.
func (s *Schema) Options() []Option {
	if !s.Valid() {
		return nil
	}
	return append([]Option(nil), s.state.Options...)
}

// Problems returns the registration problems recorded so far.
func (s *Schema) Problems() []Problem {
	if !s.Valid() {
		return nil
	}
	return append([]Problem(nil), s.state.Problems...)
}

// Lookup finds an option by name.
func (s *Schema) Lookup(name string) (Option, bool) {
	if !s.Valid() {
		return Option{}, false
	}
	for _, o := range s.state.Options {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// Len returns the number of merged options.
func (s *Schema) Len() int {
	if !s.Valid() {
		return 0
	}
	return len(s.state.Options)
}

func (st *State) clone() State {
	return State{
		Options:  append([]Option(nil), st.Options...),
		Problems: append([]Problem(nil), st.Problems...),
	}
}

func (st *State) merge(owner string, opts OptionSet) {
	for _, o := range opts {
		o.Owner = owner
		if reason := validate(o); reason != "" {
			st.Problems = append(st.Problems, Problem{Kind: InvalidOption, Option: o.Name, Owner: owner, Reason: reason})
			continue
		}
		if holder, ok := st.holder(o.Name); ok {
			st.Problems = append(st.Problems, Problem{Kind: DuplicateOption, Option: o.Name, Owner: owner, Holder: holder, Reason: "name"})
			continue
		}
		if o.Shorthand != "" {
			if holder, ok := st.shorthandHolder(o.Shorthand); ok {
				st.Problems = append(st.Problems, Problem{
					Kind: DuplicateOption, Option: o.Name, Owner: owner, Holder: holder,
					Reason: "shorthand -" + o.Shorthand + " dropped",
				})
				o.Shorthand = ""
			}
		}
		st.Options = append(st.Options, o)
	}
}

func (st *State) holder(name string) (string, bool) {
	for _, o := range st.Options {
		if o.Name == name {
			return o.Owner, true
		}
	}
	return "", false
}

func (st *State) shorthandHolder(short string) (string, bool) {
	for _, o := range st.Options {
		if o.Shorthand == short {
			return o.Owner, true
		}
	}
	return "", false
}

func validate(o Option) string {
	if !optionName.MatchString(o.Name) {
		return "name must be lowercase letters, digits and dashes"
	}
	if len(o.Shorthand) > 1 {
		return "shorthand must be a single character"
	}
	if o.Default == "" {
		return ""
	}
	if err := checkValue(o.Kind, o.Default); err != nil {
		return fmt.Sprintf("default %q: %v", o.Default, err)
	}
	return ""
}

func checkValue(kind OptionKind, v string) error {
	var err error
	switch kind {
	case KindString:
	case KindBool:
		_, err = strconv.ParseBool(v)
	case KindInt:
		_, err = strconv.Atoi(v)
	case KindUint64:
		_, err = strconv.ParseUint(v, 0, 64)
	case KindFloat64:
		_, err = strconv.ParseFloat(v, 64)
	case KindDuration:
		_, err = time.ParseDuration(v)
	default:
		err = fmt.Errorf("unknown kind %s", kind)
	}
	return err
}
