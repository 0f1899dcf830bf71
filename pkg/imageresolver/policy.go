package imageresolver

// Policy selects how an image reference is made locally available.
type Policy string

const (
	// PullOnly fetches from a registry; never builds.
	PullOnly Policy = "pull_only"
	// BuildOnly imports a pre-built image archive; never pulls.
	BuildOnly Policy = "build_only"
	// PullThenBuild tries a registry pull first, falling back to a
	// build on failure.
	PullThenBuild Policy = "pull_then_build"
	// BuildThenPull tries a build first, falling back to a pull on
	// failure.
	BuildThenPull Policy = "build_then_pull"
	// PreferLocal uses whatever is already present; otherwise behaves
	// like PullThenBuild.
	PreferLocal Policy = "prefer_local"
)
