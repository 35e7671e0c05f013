package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer   io.Writer
	jsonMode bool

	success *color.Color
	failure *color.Color
	warning *color.Color
	accent  *color.Color
	dim     *color.Color
}

// NewOutput creates an Output bound to the command's stdout. Color is
// disabled automatically when stdout is not a terminal.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		writer:   cmd.OutOrStdout(),
		jsonMode: jsonMode,
		success:  color.New(color.FgGreen),
		failure:  color.New(color.FgRed),
		warning:  color.New(color.FgYellow),
		accent:   color.New(color.FgCyan),
		dim:      color.New(color.Faint),
	}
}

// IsJSON returns true when --json was passed.
func (o *Output) IsJSON() bool { return o.jsonMode }

// JSON outputs data as indented JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.success.Fprintf(o.writer, format+"\n", args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.failure.Fprintf(o.writer, format+"\n", args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.warning.Fprintf(o.writer, format+"\n", args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.accent.Fprintf(o.writer, format+"\n", args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.dim.Fprintf(o.writer, format+"\n", args...)
}

// Signed renders an amount green when positive and red when negative.
func (o *Output) Signed(value float64, formatted string) string {
	switch {
	case value > 0:
		return o.success.Sprint(formatted)
	case value < 0:
		return o.failure.Sprint(formatted)
	default:
		return formatted
	}
}
