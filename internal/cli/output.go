package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		writer:       cmd.OutOrStdout(),
		jsonMode:     jsonMode,
		colorEnabled: !jsonMode && cmd.OutOrStdout() == os.Stdout && isTerminal(),
	}
}

func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as indented JSON.
func (o *Output) JSON(data any) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (o *Output) Printf(format string, args ...any) {
	fmt.Fprintf(o.writer, format, args...)
}

func (o *Output) Println(args ...any) {
	fmt.Fprintln(o.writer, args...)
}

// Success prints a message in green.
func (o *Output) Success(format string, args ...any) {
	o.colored(colorGreen, format, args...)
}

// Warning prints a message in yellow.
func (o *Output) Warning(format string, args ...any) {
	o.colored(colorYellow, format, args...)
}

// Error prints a message in red.
func (o *Output) Error(format string, args ...any) {
	o.colored(colorRed, format, args...)
}

// Dim prints a de-emphasized message.
func (o *Output) Dim(format string, args ...any) {
	o.colored(colorDim, format, args...)
}

func (o *Output) colored(color, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if o.colorEnabled {
		fmt.Fprintf(o.writer, "%s%s%s\n", color, msg, colorReset)
		return
	}
	fmt.Fprintln(o.writer, msg)
}
