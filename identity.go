package hangfire

import (
	"fmt"
	"os"
)

// ServerID uniquely identifies one server process in the cluster. It is the
// key for every registry entry the process owns, so its format is part of
// the registry contract: "<host>:<pid>".
type ServerID string

// NewServerID computes the identity for the current process.
func NewServerID(host string) ServerID {
	return ServerID(fmt.Sprintf("%s:%d", host, os.Getpid()))
}

// String returns the identity in its wire form.
func (id ServerID) String() string { return string(id) }
