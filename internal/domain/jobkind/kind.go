// Package jobkind defines the capability contract every job kind implements and the
// registry that validates kinds when they are registered.
package jobkind

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/target/jobtrack/internal/domain/model"
	"github.com/target/jobtrack/internal/domain/task"
)

// Kind describes one family of job records: its parameter fields and its task.
type Kind interface {
	// Name is the kind tag stored on records and carried in identity tokens.
	Name() string
	// ParameterFieldNames lists the fields that fully determine a run. Repeat copies exactly these.
	ParameterFieldNames() []string
	// ReadonlyFieldNames lists the fields a presentation layer must not let users edit.
	ReadonlyFieldNames() []string
	// Task returns the unit of work executed for records of this kind.
	Task() task.Func
}

// Standard record fields shared by every kind.
var recordFields = []string{
	"id",
	"kind",
	"execution_handle",
	"created_at",
	"started_at",
	"finished_at",
	"persisted_state",
	"log_text",
	"warnings_text",
	"persisted_exception",
	"persisted_result",
	"submitted_by",
}

// Derived fields computed from persisted and live executor state.
var derivedFields = []string{
	"effective_exception",
	"effective_state",
	"progress_percent",
	"effective_result",
}

// StandardReadonlyFields returns every record field that is not a parameter, followed by
// the derived fields.
func StandardReadonlyFields(parameterFields []string) []string {
	params := make(map[string]struct{}, len(parameterFields))
	for _, f := range parameterFields {
		params[f] = struct{}{}
	}
	out := make([]string, 0, len(recordFields)+len(derivedFields))
	for _, f := range recordFields {
		if _, ok := params[f]; !ok {
			out = append(out, f)
		}
	}
	return append(out, derivedFields...)
}

// Spec is a declarative Kind implementation.
type Spec struct {
	KindName        string
	ParameterFields []string
	Run             task.Func
}

var _ Kind = Spec{}

// Name implements Kind.
func (s Spec) Name() string { return s.KindName }

// ParameterFieldNames implements Kind.
func (s Spec) ParameterFieldNames() []string { return append([]string(nil), s.ParameterFields...) }

// ReadonlyFieldNames implements Kind.
func (s Spec) ReadonlyFieldNames() []string { return StandardReadonlyFields(s.ParameterFields) }

// Task implements Kind.
func (s Spec) Task() task.Func { return s.Run }

// Registry errors.
var (
	ErrUnknownKind     = errors.New("unknown job kind")
	ErrInvalidKind     = errors.New("invalid job kind")
	ErrDuplicateKind   = errors.New("job kind already registered")
	ErrUnknownField    = errors.New("unknown parameter field")
	ErrReservedField   = errors.New("parameter field collides with a record field")
	ErrMissingTaskFunc = errors.New("job kind has no task function")
)

// Registry maps kind tags to kinds. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Kind)}
}

// Register validates k and adds it to the registry.
func (r *Registry) Register(k Kind) error {
	if err := validateKind(k); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[k.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, k.Name())
	}
	r.kinds[k.Name()] = k
	return nil
}

// MustRegister registers k and panics on contract violations.
func (r *Registry) MustRegister(kinds ...Kind) {
	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			panic(err) //nolint:forbidigo // a broken job kind is a programming error caught at startup
		}
	}
}

func validateKind(k Kind) error {
	if k == nil {
		return fmt.Errorf("%w: nil kind", ErrInvalidKind)
	}
	name := k.Name()
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " \t\n#") {
		return fmt.Errorf("%w: name %q", ErrInvalidKind, name)
	}
	fields := k.ParameterFieldNames()
	if len(fields) == 0 {
		return fmt.Errorf("%w: %s declares no parameter fields", ErrInvalidKind, name)
	}
	seen := make(map[string]struct{}, len(fields))
	reserved := make(map[string]struct{}, len(recordFields))
	for _, f := range recordFields {
		reserved[f] = struct{}{}
	}
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w: %s has an empty parameter field", ErrInvalidKind, name)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("%w: %s repeats parameter field %q", ErrInvalidKind, name, f)
		}
		if _, clash := reserved[f]; clash {
			return fmt.Errorf("%w: %s.%s", ErrReservedField, name, f)
		}
		seen[f] = struct{}{}
	}
	if k.Task() == nil {
		return fmt.Errorf("%w: %s", ErrMissingTaskFunc, name)
	}
	return nil
}

// Lookup returns the kind registered under name.
func (r *Registry) Lookup(name string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return k, nil
}

// Names returns the registered kind tags in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for n := range r.kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidateParameters checks that params only carries fields the kind declares.
// Declared fields may be absent.
func (r *Registry) ValidateParameters(kind string, params model.Parameters) error {
	k, err := r.Lookup(kind)
	if err != nil {
		return err
	}
	allowed := make(map[string]struct{})
	for _, f := range k.ParameterFieldNames() {
		allowed[f] = struct{}{}
	}
	var unknown []string
	for name := range params {
		if _, ok := allowed[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w for %s: %s", ErrUnknownField, kind, strings.Join(unknown, ", "))
	}
	return nil
}
