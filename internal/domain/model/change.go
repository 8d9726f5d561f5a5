package model

// Git tree modes used for regular and executable files.
const (
	FileModeRegular    = "100644"
	FileModeExecutable = "100755"
)

// FileChange is a difference between a working tree and the snapshot taken at checkout.
type FileChange struct {
	Path    string // Slash-separated, relative to the repository root.
	Content []byte // Nil when Deleted.
	Mode    string
	Deleted bool
}

// CheckoutRequest asks for a writable working tree of Repository at Ref.
// When Dir is set, an existing local checkout is used instead of downloading one.
type CheckoutRequest struct {
	Repository string
	Ref        string
	Dir        string
}

// CommitAuthor is the identity recorded on automation commits.
type CommitAuthor struct {
	Name  string
	Email string
}

// CommitRequest describes a commit built from a base tree plus changes.
type CommitRequest struct {
	BaseSHA   string // Commit whose tree the changes are applied to.
	ParentSHA string // Parent of the new commit; usually BaseSHA or the PR head.
	Message   string
	Author    CommitAuthor
	Changes   []FileChange
}

// CommitResult is the outcome of a CommitRequest. When Changed is false the
// resulting tree equals the parent's tree and no commit was created; SHA is
// then the parent SHA.
type CommitResult struct {
	SHA     string
	TreeSHA string
	Changed bool
}
