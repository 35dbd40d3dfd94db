package guard

// LoginOptions configure RequireLogin. The zero value enforces locks and
// email verification.
type LoginOptions struct {
	Fresh              bool
	RefreshOnly        bool
	IgnoreVerification bool
	IgnoreLocked       bool
	VerifyURI          string
}

// RequireLogin allows any authenticated, unlocked, verified principal.
func RequireLogin(d Deps, o LoginOptions) *Policy {
	return New(d, Options{
		Mode:               ModeRequireLogin,
		RequireFresh:       o.Fresh,
		RefreshOnly:        o.RefreshOnly,
		IgnoreVerification: o.IgnoreVerification,
		IgnoreLocked:       o.IgnoreLocked,
		VerifyURI:          o.VerifyURI,
	})
}

// AdminOptions configure RequireAdmin. Locks and verification are always enforced.
type AdminOptions struct {
	Fresh       bool
	RefreshOnly bool
	VerifyURI   string
}

// RequireAdmin additionally requires the admin privilege.
func RequireAdmin(d Deps, o AdminOptions) *Policy {
	return New(d, Options{
		Mode:         ModeRequireAdmin,
		RequireFresh: o.Fresh,
		RefreshOnly:  o.RefreshOnly,
		VerifyURI:    o.VerifyURI,
	})
}

// EducatorOptions configure RequireEducator.
type EducatorOptions struct {
	IgnoreVerification bool
	// IgnoreLocked is off by default; locked educators are logged out like everyone else.
	IgnoreLocked bool
	// UnauthorizedRedirect replaces the 403 when set.
	UnauthorizedRedirect string
	VerifyURI            string
}

// RequireEducator additionally requires the educator or admin privilege.
func RequireEducator(d Deps, o EducatorOptions) *Policy {
	return New(d, Options{
		Mode:                 ModeRequireEducator,
		IgnoreVerification:   o.IgnoreVerification,
		IgnoreLocked:         o.IgnoreLocked,
		UnauthorizedRedirect: o.UnauthorizedRedirect,
		VerifyURI:            o.VerifyURI,
	})
}

// OptionalOptions configure OptionalLogin. Verification is not enforced
// unless asked for.
type OptionalOptions struct {
	EnforceVerification bool
	IgnoreLocked        bool
	VerifyURI           string
}

// OptionalLogin never denies a missing or invalid credential; the wrapped
// operation receives the principal or nil.
func OptionalLogin(d Deps, o OptionalOptions) *Policy {
	return New(d, Options{
		Mode:               ModeOptionalLogin,
		IgnoreVerification: !o.EnforceVerification,
		IgnoreLocked:       o.IgnoreLocked,
		VerifyURI:          o.VerifyURI,
	})
}

// AnonymousOptions configure AnonymousRequired. Admins pass through unless
// DisableAdminOverride is set.
type AnonymousOptions struct {
	DisableAdminOverride bool
	// LoggedInRedirect defaults to "/".
	LoggedInRedirect string
	UsePathCallback  bool
}

// AnonymousRequired allows only callers without a valid credential, for
// pages like login and signup.
func AnonymousRequired(d Deps, o AnonymousOptions) *Policy {
	return New(d, Options{
		Mode:             ModeAnonymousRequired,
		AdminOverride:    !o.DisableAdminOverride,
		LoggedInRedirect: o.LoggedInRedirect,
		UsePathCallback:  o.UsePathCallback,
	})
}
