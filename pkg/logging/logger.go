package logging

import "go.uber.org/zap"

// New builds the process logger for the given environment. Production
// gets the JSON encoder at info level; everything else the development
// console encoder at debug level.
func New(env string) (*zap.Logger, error) {
	switch env {
	case "production", "prod":
		return zap.NewProduction()
	default:
		return zap.NewDevelopment()
	}
}
