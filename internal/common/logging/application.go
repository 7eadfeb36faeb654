package logging

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

// ConfigureLogging sets up the standard logrus logger with settings suitable for unit tests and
// command line usage until ConfigureApplicationLogging is called.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true, TimestampFormat: RFC3339Milli})
	log.SetOutput(os.Stdout)
}

// ConfigureApplicationLogging applies the supplied configuration to the standard logrus logger and
// registers a hook exporting per-level log line counts to prometheus.
func ConfigureApplicationLogging(config Config) error {
	if err := validate(config); err != nil {
		return err
	}
	level, _ := parseLogLevel(config.Level)
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	if strings.ToLower(config.Format) == FormatJson {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: RFC3339Milli})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: RFC3339Milli})
	}
	log.AddHook(NewPrometheusHook())
	return nil
}
