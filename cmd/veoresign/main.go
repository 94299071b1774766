// Command veoresign re-signs VERS Encapsulated Objects: it verifies,
// renews, creates or extends the detached XML signatures and history log
// of one or more VEOs.
package main

import (
	"fmt"
	"os"
	"os/user"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vers-au/veoresign/internal/batch"
	"github.com/vers-au/veoresign/internal/credential"
	"github.com/vers-au/veoresign/internal/logging"
	"github.com/vers-au/veoresign/internal/veo"
	"github.com/vers-au/veoresign/internal/xmlsig"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(rawArgs []string) int {
	signerArgs, remaining, err := extractSignerArgs(rawArgs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var (
		doVerify, doRenew, doCreate, doAddEvent bool
		supportDir                              string
		userDesc, eventDesc, hashAlgo           string
		outputDir                               string
		zip, overwrite, verbose, debug          bool
	)

	cmd := &cobra.Command{
		Use:           "veoresign [veo paths...]",
		Short:         "Verify, renew, create or extend VEO signatures",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := resolveTask(doVerify, doRenew, doCreate, doAddEvent)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return fmt.Errorf("at least one VEO path is required")
			}

			level := "info"
			if debug {
				level = "debug"
			} else if verbose {
				level = "info"
			}
			logger := logging.New(os.Stdout, level)

			signers, err := loadSigners(signerArgs, logger)
			if err != nil {
				logger.Errorf("%v", err)
				return err
			}

			if userDesc == "" {
				userDesc = defaultUserDesc()
			}
			if outputDir == "" {
				outputDir, err = os.Getwd()
				if err != nil {
					return err
				}
			}

			cfg := batch.Config{
				Task:       task,
				Signers:    signers,
				DigestName: hashAlgo,
				UserDesc:   userDesc,
				EventDesc:  eventDesc,
				OutputDir:  outputDir,
				Zip:        zip,
				Overwrite:  overwrite,
				Logger:     logger,
			}
			_ = supportDir // accepted on the command line; not passed to the batch, engine or verifier

			code := batch.Run(cfg, args)
			if code != 0 {
				cmd.SilenceUsage = true
				return fmt.Errorf("batch run failed")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&doVerify, "verify", false, "verify existing signatures and record the outcome in history")
	flags.BoolVar(&doRenew, "renew", false, "replace signatures, discarding any that failed verification")
	flags.BoolVar(&doCreate, "create", false, "create signatures from scratch, discarding any existing ones")
	flags.BoolVar(&doAddEvent, "addevent", false, "append a user-supplied event to history and resign it")
	flags.StringVar(&supportDir, "support", "", "schema support directory (accepted; not used by the verifier)")
	flags.StringVarP(&userDesc, "u", "u", "", "initiator recorded against the appended event (default: current user)")
	flags.StringVarP(&eventDesc, "e", "e", "", "event description (required for -addevent)")
	flags.StringVar(&hashAlgo, "ha", xmlsig.DefaultDigestName, "hash algorithm: sha1, sha256, sha384 or sha512")
	flags.StringVarP(&outputDir, "o", "o", "", "output directory (default: current working directory)")
	flags.BoolVar(&zip, "zip", false, "repack the VEO as a .veo.zip archive after resigning")
	flags.BoolVar(&overwrite, "overwrite", false, "overwrite an existing unpacked directory or archive")
	flags.BoolVarP(&verbose, "v", "v", false, "verbose logging")
	flags.BoolVarP(&debug, "d", "d", false, "debug logging")

	cmd.SetArgs(remaining)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func resolveTask(verify, renew, create, addEvent bool) (veo.Task, error) {
	count := 0
	var task veo.Task
	for _, pair := range []struct {
		set bool
		t   veo.Task
	}{
		{verify, veo.Verify},
		{renew, veo.Renew},
		{create, veo.Create},
		{addEvent, veo.AddEvent},
	} {
		if pair.set {
			count++
			task = pair.t
		}
	}
	if count != 1 {
		return 0, fmt.Errorf("exactly one of -verify, -renew, -create, -addevent is required")
	}
	return task, nil
}

func loadSigners(args []signerArg, logger *logrus.Logger) ([]*veo.Signer, error) {
	signers := make([]*veo.Signer, 0, len(args))
	for _, a := range args {
		s, err := credential.Load(a.PFXFile, a.Password)
		if err != nil {
			return nil, err
		}
		switch {
		case s.Expired:
			logger.Warnf("%s: certificate expired %d day(s) ago, continuing anyway", a.PFXFile, -s.ExpireDays)
		case s.ExpireSoon:
			logger.Warnf("%s: certificate expires in %d day(s)", a.PFXFile, s.ExpireDays)
		}
		signers = append(signers, s)
	}
	return signers, nil
}

func defaultUserDesc() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "unknown"
	}
	return u.Username
}
