package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/espforge/espforge/internal/config"
	"github.com/espforge/espforge/internal/schema"
)

// translateSettings converts the HCL-specific settings schema into the
// agnostic model, applying defaults.
func translateSettings(s *schema.Settings) *config.Settings {
	jobs := defaultJobs
	if s.Jobs != nil {
		jobs = *s.Jobs
	}
	return &config.Settings{
		Board:    s.Board,
		Jobs:     jobs,
		KeepTemp: s.KeepTemp,
	}
}

// translateBundle converts the HCL-specific bundle schema into the agnostic
// model, evaluating the build_flags expression.
func (l *Loader) translateBundle(ctx context.Context, b *schema.Bundle) (*config.Bundle, error) {
	flags, err := evalStringList(b.BuildFlags)
	if err != nil {
		return nil, fmt.Errorf("bundle %q: invalid build_flags: %w", b.Name, err)
	}

	output := b.Output
	if output == "" {
		output = config.LibraryOutputName(b.Framework)
	}

	bundle := &config.Bundle{
		Name:        b.Name,
		Framework:   b.Framework,
		Output:      output,
		BuildFlags:  flags,
		ExcludeDirs: b.ExcludeDirs,
	}
	for _, lib := range b.Libraries {
		bundle.Libraries = append(bundle.Libraries, &config.Library{
			Name:    lib.Name,
			Version: lib.Version,
			Headers: lib.Headers,
		})
	}
	return bundle, nil
}

// evalStringList evaluates an optional HCL expression and converts the
// result to a Go string slice via cty. A nil or null expression yields nil.
func evalStringList(expr hcl.Expression) ([]string, error) {
	if expr == nil {
		return nil, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}

	converted, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("cannot convert %s to list of string: %w", val.Type().FriendlyName(), err)
	}

	var out []string
	if err := gocty.FromCtyValue(converted, &out); err != nil {
		return nil, err
	}
	return out, nil
}
