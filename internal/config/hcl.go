package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// ParseHCL decodes an HCL declaration on top of the defaults.
//
// Deployment options are top-level attributes; every other option is an
// attribute of the block named after its section (interceptors, runtime,
// paths, scenario). Expressions may reference the process environment as
// env.NAME, taken from environ ("KEY=value" entries).
func ParseHCL(filename string, src []byte, environ []string) (*Deployment, error) {
	file, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %w", diags)
	}

	sections := make(map[string]bool)
	schema := &hcl.BodySchema{}
	for _, opt := range Options() {
		section := opt.Section()
		if section == "" {
			schema.Attributes = append(schema.Attributes, hcl.AttributeSchema{Name: opt.Name})
			continue
		}
		if !sections[section] {
			sections[section] = true
			schema.Blocks = append(schema.Blocks, hcl.BlockHeaderSchema{Type: section})
		}
	}

	content, diags := file.Body.Content(schema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %w", diags)
	}

	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": envObject(environ)},
	}

	d := Default()
	if err := applyAttributes(d, "", content.Attributes, ctx); err != nil {
		return nil, err
	}

	for _, block := range content.Blocks {
		attrs, diags := block.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL: %w", diags)
		}
		if err := applyAttributes(d, block.Type, attrs, ctx); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func applyAttributes(d *Deployment, section string, attrs hcl.Attributes, ctx *hcl.EvalContext) error {
	for name, attr := range attrs {
		opt, ok := Lookup(name)
		if !ok || opt.Section() != section {
			return fmt.Errorf("%s: unsupported option '%s' in %s", attr.NameRange, name, sectionLabel(section))
		}

		val, diags := attr.Expr.Value(ctx)
		if diags.HasErrors() {
			return fmt.Errorf("failed to evaluate %s: %w", name, diags)
		}

		if opt.Kind() == KindList {
			items, err := ctyToList(opt, val)
			if err != nil {
				return fmt.Errorf("%s: %w", attr.NameRange, err)
			}
			if err := opt.SetList(d, items); err != nil {
				return err
			}
			continue
		}

		raw, err := ctyToRaw(opt, val)
		if err != nil {
			return fmt.Errorf("%s: %w", attr.NameRange, err)
		}
		if err := opt.Set(d, raw); err != nil {
			return err
		}
	}
	return nil
}

func checkKnown(opt Option, val cty.Value) error {
	if val.IsNull() {
		return fmt.Errorf("%s must not be null", opt.Name)
	}
	if !val.IsWhollyKnown() {
		return fmt.Errorf("%s must be a known value", opt.Name)
	}
	return nil
}

// ctyToList converts an evaluated list, keeping every item verbatim and in order
func ctyToList(opt Option, val cty.Value) ([]string, error) {
	if err := checkKnown(opt, val); err != nil {
		return nil, err
	}

	list, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("%s must be a list of strings: %w", opt.Name, err)
	}
	items := []string{}
	for it := list.ElementIterator(); it.Next(); {
		_, item := it.Element()
		if item.IsNull() {
			return nil, fmt.Errorf("%s must not contain null items", opt.Name)
		}
		items = append(items, item.AsString())
	}
	return items, nil
}

// ctyToRaw renders an evaluated scalar in the string form Option.Set accepts
func ctyToRaw(opt Option, val cty.Value) (string, error) {
	if err := checkKnown(opt, val); err != nil {
		return "", err
	}

	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("%s must be a %s: %w", opt.Name, opt.Kind(), err)
	}
	return str.AsString(), nil
}

func envObject(environ []string) cty.Value {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	if len(vars) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(vars)
}

func sectionLabel(section string) string {
	if section == "" {
		return "top level"
	}
	return fmt.Sprintf("%s block", section)
}
