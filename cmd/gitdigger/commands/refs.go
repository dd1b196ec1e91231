package commands

import (
	"strings"

	"github.com/walteh/gitdigger/pkg/ref"
)

// parseReference turns a CLI argument into a repository reference. Accepted
// shapes:
//
//	https://github.com/acme/widgets     full URL
//	gitlab:acme/widgets                 owner/name with a provider hint
//	acme/widgets                        bare owner/name (default provider)
func parseReference(arg string) ref.RepoReference {
	if strings.Contains(arg, "://") {
		return ref.RepoReference{URL: arg}
	}

	hint := ref.Unknown
	rest := arg
	if prefix, tail, ok := strings.Cut(arg, ":"); ok {
		if kind, err := ref.ParseKind(prefix); err == nil && kind != ref.Unknown {
			hint = kind
			rest = tail
		}
	}

	if owner, name, ok := strings.Cut(rest, "/"); ok {
		return ref.RepoReference{Hint: hint, Owner: owner, Name: name}
	}
	return ref.RepoReference{URL: arg}
}

func parseReferences(args []string) []ref.RepoReference {
	refs := make([]ref.RepoReference, 0, len(args))
	for _, arg := range args {
		refs = append(refs, parseReference(arg))
	}
	return refs
}
