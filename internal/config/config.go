package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jpfrdev/folder-sync/internal/utils"
)

// LogFileExt is the required extension of the log file argument.
const LogFileExt = ".log"

var intervalPattern = regexp.MustCompile(`^(\d+)([smhdSMHD])$`)

// Config holds the validated invocation parameters of a sync run.
type Config struct {
	SourceDir  string
	ReplicaDir string
	Interval   time.Duration
	LogFile    string

	Once      bool
	Watch     bool
	DryRun    bool
	Excludes  []string
	HashCache int
}

// Validate normalizes all paths to clean absolute paths and rejects
// configurations that can never produce a sane mirror. It does not require
// the source to exist: that is checked at the start of every pass, because
// the source can disappear between passes.
func (c *Config) Validate() error {
	src, err := utils.ResolvePath(c.SourceDir)
	if err != nil {
		return fmt.Errorf("invalid source path: %w", err)
	}

	replica, err := utils.ResolvePath(c.ReplicaDir)
	if err != nil {
		return fmt.Errorf("invalid replica path: %w", err)
	}

	logFile, err := utils.ResolvePath(c.LogFile)
	if err != nil {
		return fmt.Errorf("invalid log file path: %w", err)
	}

	if src == replica {
		return errors.New("source and replica must be different directories")
	}
	if utils.IsSubPath(src, replica) {
		return fmt.Errorf("replica %q cannot be inside source %q", replica, src)
	}
	if utils.IsSubPath(replica, src) {
		return fmt.Errorf("source %q cannot be inside replica %q", src, replica)
	}

	if !strings.HasSuffix(logFile, LogFileExt) {
		return fmt.Errorf("log file %q must have a %q extension", logFile, LogFileExt)
	}

	if c.Interval <= 0 && !c.Once {
		return errors.New("sync interval must be positive")
	}

	if c.Once && c.Watch {
		return errors.New("once and watch are mutually exclusive")
	}

	if c.HashCache < 0 {
		return errors.New("hash cache size cannot be negative")
	}

	c.SourceDir = src
	c.ReplicaDir = replica
	c.LogFile = logFile

	return nil
}

// ParseInterval parses a sync interval of the form "<number><unit>" where
// unit is one of s, m, h, d (case-insensitive), e.g. "30s", "5m", "1h", "2d".
func ParseInterval(s string) (time.Duration, error) {
	m := intervalPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid interval %q: expected <number><s|m|h|d>", s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}

	var unit time.Duration
	switch strings.ToLower(m[2]) {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}

	return time.Duration(n) * unit, nil
}
