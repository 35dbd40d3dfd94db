package guard

import (
	"context"

	"classroom-access/internal/auth"
)

// Wrap evaluates g and runs op only on Allow. op receives the forwarded
// principal, which is nil for anonymous-only routes and may be nil for
// optional ones. On denial op is not called and the zero T is returned with
// the verdict.
func Wrap[T any](ctx context.Context, g Guard, req Request, op func(context.Context, *auth.Principal) (T, error)) (T, Verdict, error) {
	v := g.Evaluate(ctx, req)
	if !v.Allowed() {
		var zero T
		return zero, v, nil
	}
	if v.Principal != nil {
		ctx = auth.ContextWithPrincipal(ctx, v.Principal)
	}
	out, err := op(ctx, v.Principal)
	return out, v, err
}

type chain []Guard

// Chain evaluates guards in order and returns the first non-Allow verdict.
// On success the verdict of the last guard that forwarded a principal wins.
func Chain(guards ...Guard) Guard {
	return chain(guards)
}

func (c chain) Evaluate(ctx context.Context, req Request) Verdict {
	out := allow(nil)
	for _, g := range c {
		v := g.Evaluate(ctx, req)
		if !v.Allowed() {
			return v
		}
		if v.Principal != nil {
			out = v
		}
	}
	return out
}

// WantsRefreshToken reports whether any guard in the chain wants the refresh credential.
func (c chain) WantsRefreshToken() bool {
	for _, g := range c {
		if wantsRefresh(g) {
			return true
		}
	}
	return false
}

func wantsRefresh(g Guard) bool {
	r, ok := g.(interface{ WantsRefreshToken() bool })
	return ok && r.WantsRefreshToken()
}
