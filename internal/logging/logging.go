// Package logging builds the zap logger shared by the server and workers.
package logging

import (
	"go.uber.org/zap"
)

// NewLogger returns a JSON production logger, or a human-readable console
// logger when development is set.
func NewLogger(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger, nil
}
