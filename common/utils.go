package common

import (
	uuid "github.com/nu7hatch/gouuid"

	"github.com/twitter/solo/runner"
)

func GenUUID() string {
	// uuid.NewV4() should never actually return an error; it reads from crypto/rand,
	// so retry rather than surface an error nobody can act on.
	for {
		if id, err := uuid.NewV4(); err == nil {
			return id.String()
		}
	}
}

// NewJobID assigns the opaque id a job carries from submission to settlement.
func NewJobID() runner.JobID {
	return runner.JobID(GenUUID())
}
