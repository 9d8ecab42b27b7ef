package durable

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

// PanicError is a value recovered from a panicking executor.
type PanicError struct {
	Function string
	Value    any
	Stack    []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("executor %s panicked: %v", e.Function, e.Value)
}

// InvokeSafely calls executor and converts a panic into a *PanicError.
func InvokeSafely(ctx context.Context, funcName string, executor Executor, trigger string, logger PanicLogger, fields ...map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := captureStack()
			if logger != nil {
				logger(funcName, r, stack, fields...)
			}
			out = nil
			err = &PanicError{Function: funcName, Value: r, Stack: stack}
		}
	}()
	return executor.Invoke(ctx, trigger)
}

// LoggerPanicLogger reports recovered panics through logger at error level.
func LoggerPanicLogger(logger Logger) PanicLogger {
	logger = NormalizeLogger(logger)
	return func(funcName string, err any, stack []byte, fields ...map[string]any) {
		var sb strings.Builder

		sb.WriteString(fmt.Sprintf("recovered from panic in %s\n", funcName))
		sb.WriteString(fmt.Sprintf("Error: %v\n", err))
		sb.WriteString(fmt.Sprintf("Error Type: %T\n", err))

		if len(fields) > 0 && fields[0] != nil {
			sb.WriteString("Context:\n")

			keys := make([]string, 0, len(fields[0]))
			for k := range fields[0] {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			for _, k := range keys {
				sb.WriteString(fmt.Sprintf("  %s: %v\n", k, fields[0][k]))
			}
		}

		sb.WriteString("Stack Trace:\n")
		sb.Write(stack)

		logger.Error("%s", sb.String())
	}
}

func captureStack() []byte {
	full := make([]byte, 8096)
	n := runtime.Stack(full, false)
	return cleanStackTrace(full[:n])
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// drop the panic() frame and its file reference
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
