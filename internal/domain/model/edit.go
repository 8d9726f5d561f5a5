package model

// EditKind selects how a FileEdit changes the working tree.
type EditKind string

const (
	// EditSubstitute replaces the value of a KEY=VALUE line.
	EditSubstitute EditKind = "substitute"
	// EditRegenerate runs an external command that rewrites files in place.
	EditRegenerate EditKind = "regenerate"
)

// Valid reports whether k is a known edit kind.
func (k EditKind) Valid() bool {
	return k == EditSubstitute || k == EditRegenerate
}

// FileEdit is one step of a RepositoryMutator run.
type FileEdit struct {
	Kind EditKind

	// Substitution fields.
	Path  string
	Key   string
	Value string

	// Regeneration fields. Command is an argv; it is never passed through a shell.
	Command []string

	// When is a template guard. An edit whose When renders blank is dropped
	// before the mutator runs, whatever its kind. An empty When always applies.
	When string
	// SkipIfEmpty skips a substitution whose value renders to "".
	SkipIfEmpty bool
	// Required turns a zero-match substitution into an error instead of a warning.
	Required bool
}

// MutationReport summarises what RepositoryMutator.Apply did.
type MutationReport struct {
	Applied  int
	Skipped  int
	Warnings []string
}
