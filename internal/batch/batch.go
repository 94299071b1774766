// Package batch implements the Batch Driver (component C8): it iterates an
// ordered list of VEO inputs, unpacking archives as needed and invoking the
// Resign Engine for each with consistent one-line reporting.
package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vers-au/veoresign/internal/archive"
	"github.com/vers-au/veoresign/internal/engine"
	"github.com/vers-au/veoresign/internal/veo"
	"github.com/vers-au/veoresign/internal/veoerr"
)

const logTimeLayout = "2006-01-02T15:04:05-07:00"

// Config is the validated configuration for one batch run.
type Config struct {
	Task       veo.Task
	Signers    []*veo.Signer
	DigestName string
	UserDesc   string
	EventDesc  string
	OutputDir  string
	Zip        bool
	Overwrite  bool
	Logger     *logrus.Logger
}

// Validate checks the config for the mistakes C8 is responsible for
// catching before touching any VEO: no signers configured, and AddEvent
// invoked without an event description. Every problem found is reported
// together so the operator can fix all of them in one pass.
func (c Config) Validate() error {
	var errs []error
	if len(c.Signers) == 0 {
		errs = append(errs, veoerr.New(veoerr.EngineConfig, "no signers configured"))
	}
	if c.Task == veo.AddEvent && strings.TrimSpace(c.EventDesc) == "" {
		errs = append(errs, veoerr.New(veoerr.EngineConfig, "AddEvent requires -e <eventDesc>"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Run processes every input path and returns a process exit code: 0 if
// every VEO in the batch was attempted (regardless of per-VEO outcome), or
// 1 if a batch-fatal error stopped the run before or during configuration.
func Run(cfg Config, inputs []string) int {
	if err := cfg.Validate(); err != nil {
		cfg.Logger.Errorf("batch configuration invalid: %v", err)
		return 1
	}

	for _, input := range inputs {
		processOne(cfg, input)
	}
	return 0
}

func processOne(cfg Config, input string) {
	resolved, err := filepath.Abs(input)
	if err != nil {
		logLine(cfg.Logger, input, "FAILED. VEO not updated. Cause: "+err.Error()+".")
		return
	}
	if _, err := os.Stat(resolved); err != nil {
		logLine(cfg.Logger, input, "FAILED. VEO not updated. Cause: input path does not exist.")
		return
	}

	var veoDir string
	switch {
	case strings.HasSuffix(resolved, ".veo.zip"):
		target := filepath.Join(cfg.OutputDir, strings.TrimSuffix(filepath.Base(resolved), ".zip"))
		if _, err := os.Stat(target); err == nil {
			if !cfg.Overwrite {
				logLine(cfg.Logger, input, "FAILED. VEO not updated. Cause: "+target+" already exists.")
				return
			}
			if err := os.RemoveAll(target); err != nil {
				logLine(cfg.Logger, input, "FAILED. VEO not updated. Cause: "+err.Error()+".")
				return
			}
		}
		unpacked, err := archive.Unpack(resolved, cfg.OutputDir)
		if err != nil {
			logLine(cfg.Logger, input, "FAILED. VEO not updated. Cause: "+err.Error()+".")
			return
		}
		veoDir = unpacked
	case strings.HasSuffix(resolved, ".veo"):
		veoDir = resolved
	default:
		logLine(cfg.Logger, input, "FAILED. VEO not updated. Cause: not a .veo directory or .veo.zip archive.")
		return
	}

	result, err := engine.Process(engine.Request{
		Task:       cfg.Task,
		VEODir:     veoDir,
		Signers:    cfg.Signers,
		DigestName: cfg.DigestName,
		UserDesc:   cfg.UserDesc,
		EventDesc:  cfg.EventDesc,
		Pack:       cfg.Zip,
		PackOutDir: cfg.OutputDir,
		Overwrite:  cfg.Overwrite,
	})
	if err != nil {
		logLine(cfg.Logger, input, "FAILED. VEO not updated. Cause: "+err.Error()+".")
		return
	}

	phrase := result.OutcomePhrase
	if result.PackSkipped {
		phrase += " Archive already exists, packing skipped."
	}
	logLine(cfg.Logger, input, phrase)
}

func logLine(logger *logrus.Logger, input, outcome string) {
	line := fmt.Sprintf("%s %s %s", time.Now().Format(logTimeLayout), input, outcome)
	logger.Info(line)
}
