package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init initializes the global logger
func Init(level string) {
	InitWithWriter(level, nil)
}

// InitWithWriter initializes the global logger writing to w.
// A nil writer selects stdout (pretty console output when ENV=development).
func InitWithWriter(level string, w io.Writer) {
	SetLevel(level)

	output := w
	if output == nil {
		output = os.Stdout

		// Pretty console logging in development
		if os.Getenv("ENV") == "development" {
			output = zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			}
		}
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	Logger.Info().
		Str("level", zerolog.GlobalLevel().String()).
		Msg("logger initialized")
}

// SetLevel changes the global log level. Unknown levels fall back to info.
func SetLevel(level string) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithMotor returns a component logger scoped to a motor
func WithMotor(component, motorID string) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Str("motor_id", motorID).
		Logger()
}
