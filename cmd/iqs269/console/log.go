package console

import (
	"fmt"
	"io"
	"os"
)

var writer io.Writer
var errWriter io.Writer

func init() {
	writer = os.Stdout
	errWriter = os.Stderr
}

func SetOutput(w, errw io.Writer) {
	writer = w
	errWriter = errw
}

func Error(msg string) {
	_, _ = fmt.Fprintf(errWriter, "%s: %s\n", Red("ERROR"), msg)
}

func Errorf(msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(errWriter, "%s: %s\n", Red("ERROR"), fmt.Sprintf(msg, args...))
}

func Warnf(msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(errWriter, "%s: %s\n", Yellow("WARN"), fmt.Sprintf(msg, args...))
}

func Infof(msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(writer, "%s %s\n", White("..."), fmt.Sprintf(msg, args...))
}

func Print(msg string) {
	_, _ = fmt.Fprintln(writer, msg)
}

func Printf(msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(writer, msg, args...)
}
