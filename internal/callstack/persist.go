package callstack

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/standardbeagle/phptags/internal/store"
	"github.com/standardbeagle/phptags/internal/types"
)

// traceNamespace scopes trace keys so equal inputs always map to the same key
var traceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("phptags:callstack"))

// TraceKey returns the stable key a trace of path/className::methodName is
// stored under. Class and method compare without case, as PHP resolves them.
func TraceKey(path, className, methodName string) string {
	name := path + "#" + strings.ToLower(strings.TrimPrefix(className, "\\")) + "::" + strings.ToLower(methodName)
	return uuid.NewSHA1(traceNamespace, []byte(name)).String()
}

// CallStackStore persists traces
type CallStackStore interface {
	SaveCallStack(ctx context.Context, key string, rows []store.CallStackRow) error
}

// Rows converts steps to their stored form
func Rows(steps []types.Step) []store.CallStackRow {
	rows := make([]store.CallStackRow, len(steps))
	for i, s := range steps {
		rows[i] = store.CallStackRow{StepNumber: s.Number, StepType: s.Type.String(), Expression: s.Expression()}
	}
	return rows
}

// Persist saves the steps of the last Build under key, replacing any trace
// stored there before
func (b *Builder) Persist(ctx context.Context, st CallStackStore, key string) error {
	return st.SaveCallStack(ctx, key, Rows(b.steps))
}

// Trace is a finished call trace with its origin
type Trace struct {
	Key              string
	File             string
	ClassName        string
	MethodName       string
	Steps            []types.Step
	ResolutionErrors []string
}

// Trace returns the result of the last Build
func (b *Builder) Trace() Trace {
	t := Trace{
		Key:        TraceKey(b.target.path, b.target.className, b.target.methodName),
		File:       b.target.path,
		ClassName:  b.target.className,
		MethodName: b.target.methodName,
		Steps:      b.Steps(),
	}
	for _, err := range b.resolutionErrors {
		t.ResolutionErrors = append(t.ResolutionErrors, err.Error())
	}
	return t
}

type yamlTrace struct {
	Key              string     `yaml:"key"`
	File             string     `yaml:"file"`
	Class            string     `yaml:"class,omitempty"`
	Method           string     `yaml:"method"`
	Steps            []yamlStep `yaml:"steps"`
	ResolutionErrors []string   `yaml:"resolution_errors,omitempty"`
}

type yamlStep struct {
	Number    int      `yaml:"number"`
	Type      string   `yaml:"type"`
	Variable  string   `yaml:"variable,omitempty"`
	Source    string   `yaml:"source,omitempty"`
	Name      string   `yaml:"name,omitempty"`
	Class     string   `yaml:"class,omitempty"`
	Key       string   `yaml:"key,omitempty"`
	Value     string   `yaml:"value,omitempty"`
	Arguments []string `yaml:"arguments,omitempty,flow"`
}

// WriteYAML writes the trace as a YAML document
func (t Trace) WriteYAML(w io.Writer) error {
	doc := yamlTrace{
		Key:              t.Key,
		File:             t.File,
		Class:            t.ClassName,
		Method:           t.MethodName,
		Steps:            make([]yamlStep, len(t.Steps)),
		ResolutionErrors: t.ResolutionErrors,
	}
	for i, s := range t.Steps {
		doc.Steps[i] = yamlStep{
			Number:    s.Number,
			Type:      s.Type.String(),
			Variable:  s.Variable,
			Source:    s.Source,
			Name:      s.Name,
			Class:     s.ClassName,
			Key:       s.Key,
			Value:     s.Value,
			Arguments: s.Arguments,
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding trace %s: %w", t.Key, err)
	}
	return enc.Close()
}

// ReadYAML reads a trace written by WriteYAML
func ReadYAML(r io.Reader) (Trace, error) {
	var doc yamlTrace
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return Trace{}, fmt.Errorf("decoding trace: %w", err)
	}
	t := Trace{
		Key:              doc.Key,
		File:             doc.File,
		ClassName:        doc.Class,
		MethodName:       doc.Method,
		Steps:            make([]types.Step, len(doc.Steps)),
		ResolutionErrors: doc.ResolutionErrors,
	}
	for i, s := range doc.Steps {
		typ, err := types.ParseStepType(s.Type)
		if err != nil {
			return Trace{}, fmt.Errorf("step %d: %w", s.Number, err)
		}
		t.Steps[i] = types.Step{
			Number:    s.Number,
			Type:      typ,
			Variable:  s.Variable,
			Source:    s.Source,
			Name:      s.Name,
			ClassName: s.Class,
			Key:       s.Key,
			Value:     s.Value,
			Arguments: s.Arguments,
		}
	}
	return t, nil
}
