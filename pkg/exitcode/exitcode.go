// Package exitcode provides standardized exit codes for rpsuite
package exitcode

// Exit codes for the rpsuite CLI
const (
	Success           = 0
	GeneralError      = 1
	ConfigError       = 2
	ValidationError   = 3
	FileSystemError   = 4
	UnsupportedFormat = 8
	StrategyError     = 10
	StateError        = 11
	ExternalError     = 12
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case ValidationError:
		return "Pack validation failed"
	case FileSystemError:
		return "File system error"
	case UnsupportedFormat:
		return "Unsupported format"
	case StrategyError:
		return "Invalid match strategy or threshold"
	case StateError:
		return "Transaction state error"
	case ExternalError:
		return "Object model reported a failure"
	default:
		return "Unknown error"
	}
}
