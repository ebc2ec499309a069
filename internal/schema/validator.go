// Package schema validates outbound event payloads.
package schema

import "github.com/rs/zerolog/log"

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks a transcript event before it is published. Structural
// validation is stubbed until the event schema is versioned; for now it
// only traces the payload.
func (v *Validator) Validate(event any) error {
	log.Debug().Interface("event", event).Msg("Schema validated")
	return nil
}
