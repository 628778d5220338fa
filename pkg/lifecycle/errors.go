package lifecycle

import "errors"

// ErrCheckVersionExit is returned by Start when database.check-version was
// set and the engine's data directory was empty at bootstrap. The caller
// (cmd/vocd) treats this as a clean exit rather than a fatal error.
var ErrCheckVersionExit = errors.New("lifecycle: check-version requested on an empty data directory")
