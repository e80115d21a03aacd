package tdcore

import (
	"os"

	"github.com/sirupsen/logrus"
)

// log is the package-level structured logger (SPEC_FULL.md AMBIENT STACK
// "Logging"). Every logged event carries `array`/`fragment`/`level`
// fields instead of being interpolated into the message string, mirroring
// the field-based idiom the retrieved corpus uses logrus for.
var log logrus.FieldLogger = defaultLogger()

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLogger replaces the package-level logger. Passing nil restores the
// default stderr logger at InfoLevel.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		log = defaultLogger()
		return
	}
	log = l
}
