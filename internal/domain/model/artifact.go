package model

// BundleFile is a single file inside an artifact bundle.
type BundleFile struct {
	Path    string // Slash-separated, relative to the bundle root.
	Content []byte
	Mode    uint32 // Unix permission bits as stored in the archive.
}

// FileBundle is the extracted directory tree of an artifact.
type FileBundle struct {
	Files []BundleFile
}

// Paths returns the relative paths of all files in the bundle, in archive order.
func (b FileBundle) Paths() []string {
	paths := make([]string, 0, len(b.Files))
	for _, f := range b.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// Artifact is a named bundle produced by a specific workflow run. Artifacts
// are read-only: nothing in chainupdate mutates them after download.
type Artifact struct {
	ID     int64
	Name   string
	RunID  int64
	Bundle FileBundle
}
