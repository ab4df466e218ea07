package mars

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ecmwf-go/metkit/internal/obslog"
)

// ExpansionContext runs the six-step pipeline of spec.md §4.9 over parsed
// Requests, given a Type registry and the (inherit, strict) flags. Mutable
// defaults threaded across a batch expansion live here, not on any Type —
// see DESIGN.md on why Types stay immutable after registry construction.
type ExpansionContext struct {
	registry          *Registry
	inherit           bool
	strict            bool
	inheritedDefaults map[string][]string
}

// NewExpansionContext returns a context bound to registry.
func NewExpansionContext(registry *Registry, inherit, strict bool) *ExpansionContext {
	return &ExpansionContext{registry: registry, inherit: inherit, strict: strict, inheritedDefaults: map[string][]string{}}
}

// Expand runs the pipeline once over req, returning a new, fully expanded
// Request. req itself is never mutated.
func (ctx *ExpansionContext) Expand(req *Request) (*Request, error) {
	out := req.clone()

	// 1. Replace each parameter's placeholder Type with the registry's.
	for _, p := range out.params {
		t, ok := ctx.registry.Lookup(p.name)
		if !ok {
			if ctx.strict {
				return nil, fmt.Errorf("%w: %q", ErrUnknownKey, p.name)
			}
			obslog.Logger.Warn().Str("key", p.name).Msg("mars: unknown key defaulted to Any in non-strict expansion")
			t = NewAnyType(p.name, "")
		}
		p.typ = t
	}

	// 2. Inject defaults for keys the request omits, if inherit is set.
	// Names() walks the language definition's declared order rather than
	// ctx.registry.types directly, so injection order — and therefore the
	// expanded Request's parameter order — is deterministic across runs.
	if ctx.inherit {
		for _, name := range ctx.registry.Names() {
			t, _ := ctx.registry.Lookup(name)
			if out.Has(name) {
				continue
			}
			defaults := t.Defaults()
			if inherited, ok := ctx.inheritedDefaults[name]; ok && len(inherited) > 0 {
				defaults = inherited
			}
			if len(defaults) > 0 {
				out.SetTyped(name, t, defaults)
			}
		}
	}

	// 3. Expand then check every parameter. A Check failure is passed
	// through as a warning in non-strict mode (spec.md Scenario E).
	for _, p := range out.params {
		expanded, err := p.typ.Expand(p.values)
		if err != nil {
			return nil, err
		}
		p.values = expanded
		if err := p.typ.Check(p.values); err != nil {
			if ctx.strict {
				return nil, err
			}
			obslog.Logger.Warn().Err(err).Str("key", p.name).Msg("mars: check error passed through in non-strict expansion")
		}
	}

	// 4. pass2 over every parameter.
	for _, p := range out.params {
		if err := p.typ.Pass2(out, p.name); err != nil {
			return nil, err
		}
	}

	// 5. finalise over every parameter; non-strict downgrades to a warning.
	for _, p := range out.params {
		if err := p.typ.Finalise(out, p.name, ctx.strict); err != nil {
			if ctx.strict {
				return nil, err
			}
			obslog.Logger.Warn().Err(err).Str("key", p.name).Msg("mars: finalise error downgraded to warning in non-strict expansion")
		}
	}

	if ctx.inherit {
		for _, p := range out.params {
			ctx.inheritedDefaults[p.name] = append([]string(nil), p.values...)
		}
	}

	return out, nil
}

// ExpandBatch runs Expand over every request in reqs. When inherit is set,
// requests are expanded sequentially so each can see defaults threaded
// from the one before it. Otherwise they are independent and run
// concurrently via errgroup (spec.md §5: "Multiple Requests ... may
// proceed in parallel").
func (ctx *ExpansionContext) ExpandBatch(reqs []*Request) ([]*Request, error) {
	if ctx.inherit {
		results := make([]*Request, 0, len(reqs))
		for _, req := range reqs {
			out, err := ctx.Expand(req)
			if err != nil {
				return nil, err
			}
			results = append(results, out)
		}
		return results, nil
	}

	results := make([]*Request, len(reqs))
	g, _ := errgroup.WithContext(context.Background())
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			out, err := ctx.Expand(req)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
