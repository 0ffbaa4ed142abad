package util

import (
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
)

// ConfigToStruct populates a settings struct from the free-form settings map
// in the config file. Unknown keys are ignored; decode failures are logged
// and leave the struct zero-valued.
func ConfigToStruct[T any](settings map[string]any) *T {
	conf := new(T)
	if err := mapstructure.Decode(settings, conf); err != nil {
		log.Error().Err(err).Msg("Unable to decode settings")
	}
	return conf
}
