package bundle

import "errors"

// ErrEmptyRange reports that the requested range holds zero commits: there
// is nothing new to share and no artifact is written.
var ErrEmptyRange = errors.New("nothing to export: range is empty")

// ErrRepositoryState reports that the repository is in no state to export a
// range (uncommitted changes). The operator cleans up and re-runs.
var ErrRepositoryState = errors.New("repository has uncommitted changes")

// ErrCorruptArtifact reports a malformed artifact, or one whose declared
// commits cannot be reconstructed from its embedded objects plus local
// history. The load attempt is dead; re-request the artifact from the
// sender.
var ErrCorruptArtifact = errors.New("corrupt artifact")
