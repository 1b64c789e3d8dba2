package session

import "errors"

// ErrNoActiveSession is returned by View.ActiveSession when no session is active.
var ErrNoActiveSession = errors.New("no active session")
