// Package log provides the graph's topology-thread logger. Never call it
// from the audio thread: a logrus call can allocate, which §5 forbids on
// process_block's path.
package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("AUDIOGRAPH_DEBUG"))
	if err != nil {
		debug = false
	}
}

// New returns a logger at InfoLevel, or DebugLevel when AUDIOGRAPH_DEBUG is
// set truthy.
func New() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}
