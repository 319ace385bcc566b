package storage

// Context is the immutable set of facts every storage backend and provider
// is constructed from. It is chosen once at process start by whatever wires
// the Agent Façade together and then threaded down to every storage
// consumer; nothing mutates it after construction.
type Context struct {
	// StorageRoot is the resolved root directory for all storage under this
	// context: the file and sqlite backends keep their data beneath it; the
	// memory and redis backends do not use it. Populated by
	// pathresolver.Resolve.
	StorageRoot string

	// IsDevelopment favors a project-local root over the user-global one
	// when neither ForceGlobal nor CustomRoot is set. See pathresolver.
	IsDevelopment bool

	// ProjectRoot is the detected project root, if any. Empty when no
	// project marker was found walking up from the start directory.
	ProjectRoot string

	// ForceGlobal pins resolution to the user-global root regardless of
	// IsDevelopment or ProjectRoot.
	ForceGlobal bool

	// CustomRoot, when non-empty, is used verbatim and takes precedence
	// over every other rule.
	CustomRoot string
}
