package shared

import "errors"

// ErrSessionStore indicates the session backend could not be reached.
var ErrSessionStore = errors.New("session store unavailable")
