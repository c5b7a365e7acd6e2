package flags

import (
	"errors"
	"time"

	"github.com/Kizito2001/defi-swap-supply/internal/constants"
)

var ErrNotFound = errors.New("flag not found")

// Flag is a named boolean switch read at runtime.
type Flag struct {
	Key         string    `json:"key"`
	Value       bool      `json:"value"`
	Description string    `json:"description,omitempty"` // set for flags the service reads
	UpdatedAt   time.Time `json:"updated_at"`
}

// descriptions of the flags the service itself consults
var descriptions = map[string]string{
	constants.FlagExecute: "send transactions for new runs; false refuses them",
}

func (f *Flag) describe() {
	f.Description = descriptions[f.Key]
}
