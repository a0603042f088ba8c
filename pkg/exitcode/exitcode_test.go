package exitcode

import "testing"

func TestExitCodeValues(t *testing.T) {
	codes := map[int]int{
		Success:           0,
		GeneralError:      1,
		ConfigError:       2,
		ValidationError:   3,
		FileSystemError:   4,
		UnsupportedFormat: 8,
		StrategyError:     10,
		StateError:        11,
		ExternalError:     12,
	}
	for got, want := range codes {
		if got != want {
			t.Errorf("exit code %d, expected %d", got, want)
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{Success, "Success"},
		{ValidationError, "Pack validation failed"},
		{StrategyError, "Invalid match strategy or threshold"},
		{StateError, "Transaction state error"},
		{ExternalError, "Object model reported a failure"},
		{99, "Unknown error"},
	}
	for _, tt := range tests {
		if got := String(tt.code); got != tt.expected {
			t.Errorf("String(%d) = %q, expected %q", tt.code, got, tt.expected)
		}
	}
}
