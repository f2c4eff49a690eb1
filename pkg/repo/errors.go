package repo

import "errors"

// ErrDetachedHead reports that no branch is checked out, so there is no
// branch name to derive an artifact from or merge into.
var ErrDetachedHead = errors.New("HEAD is detached; check out a branch")

// ErrMergeConflict reports that the engine's three-way merge stopped on
// conflicts. The branch ref is unchanged and no merge commit exists; the
// working tree holds conflict markers for manual resolution.
var ErrMergeConflict = errors.New("merge conflict")
