package dimension

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/probemap/probemap/internal/hypergraph"
)

// Compile parses a CUE value into a Schema. The value holds a `dimension`
// struct (one field per dimension) and optionally a `constraint` struct,
// e.g.:
//
//	dimension: auth: {
//		system: "api"
//		path:   "session.kind"
//		values: ["anonymous", "user", "admin"]
//	}
//	constraint: no_anonymous_admin: {
//		when:    {auth: "anonymous"}
//		require: {role: "none"}
//	}
func Compile(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := &Schema{}

	dimVal := v.LookupPath(cue.ParsePath("dimension"))
	if !dimVal.Exists() {
		return nil, &CompileError{
			Field:   "dimension",
			Message: "at least one dimension is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := dimVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		d, err := parseDimension(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		schema.Dimensions = append(schema.Dimensions, *d)
	}
	if len(schema.Dimensions) == 0 {
		return nil, &CompileError{
			Field:   "dimension",
			Message: "at least one dimension is required",
			Pos:     dimVal.Pos(),
		}
	}

	conVal := v.LookupPath(cue.ParsePath("constraint"))
	if conVal.Exists() {
		iter, err := conVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			c, err := parseConstraint(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			schema.Constraints = append(schema.Constraints, *c)
		}
	}

	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

// parseDimension parses one dimension definition.
func parseDimension(name string, v cue.Value) (*Dimension, error) {
	d := &Dimension{Name: name}

	sysVal := v.LookupPath(cue.ParsePath("system"))
	if !sysVal.Exists() {
		return nil, &CompileError{
			Field:   fmt.Sprintf("dimension.%s.system", name),
			Message: "system is required",
			Pos:     v.Pos(),
		}
	}
	sys, err := sysVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	d.System = sys

	pathVal := v.LookupPath(cue.ParsePath("path"))
	if !pathVal.Exists() {
		return nil, &CompileError{
			Field:   fmt.Sprintf("dimension.%s.path", name),
			Message: "path is required",
			Pos:     v.Pos(),
		}
	}
	path, err := pathVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if path == "" {
		return nil, &CompileError{
			Field:   fmt.Sprintf("dimension.%s.path", name),
			Message: "path must not be empty",
			Pos:     pathVal.Pos(),
		}
	}
	d.Path = strings.Split(path, ".")

	valuesVal := v.LookupPath(cue.ParsePath("values"))
	if valuesVal.Exists() {
		values, err := parseStringList(valuesVal)
		if err != nil {
			return nil, err
		}
		d.Values = values
	}

	bandsVal := v.LookupPath(cue.ParsePath("bands"))
	if bandsVal.Exists() {
		if len(d.Values) > 0 {
			return nil, &CompileError{
				Field:   fmt.Sprintf("dimension.%s", name),
				Message: "values and bands are mutually exclusive",
				Pos:     bandsVal.Pos(),
			}
		}
		bands, err := parseBands(name, bandsVal)
		if err != nil {
			return nil, err
		}
		d.Bands = bands
	}

	return d, nil
}

// parseBands parses the numeric banding list. A band without a max is
// open-ended.
func parseBands(dim string, v cue.Value) ([]Band, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var bands []Band
	for iter.Next() {
		bv := iter.Value()

		labelVal := bv.LookupPath(cue.ParsePath("label"))
		if !labelVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("dimension.%s.bands", dim),
				Message: "band label is required",
				Pos:     bv.Pos(),
			}
		}
		label, err := labelVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		band := Band{Label: label}
		maxVal := bv.LookupPath(cue.ParsePath("max"))
		if maxVal.Exists() {
			max, err := maxVal.Float64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			band.Max = max
		} else {
			band.Open = true
		}
		bands = append(bands, band)
	}
	return bands, nil
}

// parseConstraint parses one invalid-combination rule.
func parseConstraint(name string, v cue.Value) (*hypergraph.Constraint, error) {
	when, err := parseStringMap(v, name, "when")
	if err != nil {
		return nil, err
	}
	require, err := parseStringMap(v, name, "require")
	if err != nil {
		return nil, err
	}
	return &hypergraph.Constraint{Name: name, When: when, Require: require}, nil
}

func parseStringMap(v cue.Value, constraint, field string) (map[string]string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return nil, &CompileError{
			Field:   fmt.Sprintf("constraint.%s.%s", constraint, field),
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := fieldVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	out := make(map[string]string)
	for iter.Next() {
		val, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out[iter.Label()] = val
	}
	if len(out) == 0 {
		return nil, &CompileError{
			Field:   fmt.Sprintf("constraint.%s.%s", constraint, field),
			Message: field + " must name at least one dimension",
			Pos:     fieldVal.Pos(),
		}
	}
	return out, nil
}

func parseStringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Validate checks schema coherence: band ordering and that constraints
// only reference declared dimensions. Compile runs it; callers loading
// schemas built by hand run it themselves.
func (s *Schema) Validate() error {
	declared := make(map[string]bool, len(s.Dimensions))
	for _, d := range s.Dimensions {
		if declared[d.Name] {
			return &CompileError{
				Field:   "dimension." + d.Name,
				Message: "duplicate dimension name",
			}
		}
		declared[d.Name] = true

		for i, b := range d.Bands {
			if b.Open && i != len(d.Bands)-1 {
				return &CompileError{
					Field:   fmt.Sprintf("dimension.%s.bands", d.Name),
					Message: "a band without a max must come last",
				}
			}
			if i > 0 && !b.Open && b.Max <= d.Bands[i-1].Max {
				return &CompileError{
					Field:   fmt.Sprintf("dimension.%s.bands", d.Name),
					Message: "band maxima must be strictly increasing",
				}
			}
		}

		if labels := labelSet(d.Bands); len(labels) != len(d.Bands) {
			return &CompileError{
				Field:   fmt.Sprintf("dimension.%s.bands", d.Name),
				Message: "band labels must be unique",
			}
		}
	}

	for _, c := range s.Constraints {
		for dim := range c.When {
			if !declared[dim] {
				return &CompileError{
					Field:   fmt.Sprintf("constraint.%s.when", c.Name),
					Message: fmt.Sprintf("unknown dimension %q", dim),
				}
			}
		}
		for dim := range c.Require {
			if !declared[dim] {
				return &CompileError{
					Field:   fmt.Sprintf("constraint.%s.require", c.Name),
					Message: fmt.Sprintf("unknown dimension %q", dim),
				}
			}
		}
	}
	return nil
}

func labelSet(bands []Band) []string {
	labels := make([]string, 0, len(bands))
	for _, b := range bands {
		if !slices.Contains(labels, b.Label) {
			labels = append(labels, b.Label)
		}
	}
	return labels
}

// CompileError is a schema compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
