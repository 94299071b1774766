// Package engine implements the Resign Engine (component C7): the state
// machine that verifies, mutates and re-signs a single unpacked VEO
// directory.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vers-au/veoresign/internal/archive"
	"github.com/vers-au/veoresign/internal/credential"
	"github.com/vers-au/veoresign/internal/history"
	"github.com/vers-au/veoresign/internal/veo"
	"github.com/vers-au/veoresign/internal/veoerr"
	"github.com/vers-au/veoresign/internal/xmlsig"
)

// Request bundles one VEO invocation's parameters.
type Request struct {
	Task        veo.Task
	VEODir      string
	Signers     []*veo.Signer
	DigestName  string
	UserDesc    string
	EventDesc   string // required for AddEvent
	Pack        bool
	PackOutDir  string
	Overwrite   bool
}

// Result reports what happened to one VEO.
type Result struct {
	OutcomePhrase string
	ArchivePath   string // set if Pack produced an archive
	PackSkipped   bool
}

// bucketState holds the signatures on disk for one bucket at S0, before any
// mutation.
type bucketState struct {
	signatures []veo.VerifiedSignature
	ok         bool
}

// Process runs req.Task against req.VEODir. On any failure in S1..S3 the
// VEO is left exactly as it was found: freshly written signature files from
// this invocation are removed and any history mutation is rolled back.
func Process(req Request) (Result, error) {
	if req.Task == veo.AddEvent && strings.TrimSpace(req.EventDesc) == "" {
		return Result{}, veoerr.New(veoerr.EngineConfig, "AddEvent requires an event description")
	}

	// S0: load_sigs
	content, hist, err := loadSignatures(req.VEODir)
	if err != nil {
		return Result{}, err
	}

	var historyBackup []byte
	historyPath := filepath.Join(req.VEODir, "VEOHistory.xml")
	var freshlyWritten []string

	// fail rolls back everything this invocation did: fresh signature
	// files are removed and the history mutation, if any, is undone.
	// Stale signatures slated for deletion are never touched until every
	// step below has succeeded, so there is nothing to restore for them.
	fail := func(cause error) (Result, error) {
		for _, p := range freshlyWritten {
			os.Remove(p)
		}
		if historyBackup != nil {
			_ = os.WriteFile(historyPath, historyBackup, 0o644)
		}
		return Result{}, cause
	}

	// S1: mutate_history
	needsEvent := req.Task != veo.Create
	if needsEvent {
		backup, err := os.ReadFile(historyPath)
		if err != nil {
			return Result{}, veoerr.Wrap(veoerr.HistoryIO, err, "reading %s before mutation", historyPath)
		}
		historyBackup = backup

		ev := buildEvent(req, content, hist)
		if err := history.AppendEvent(historyPath, ev); err != nil {
			return Result{}, err
		}
	}

	// S2: sign
	plan := signingPlan(req.Task)

	if plan.emitContent {
		for _, s := range req.Signers {
			path, err := emitSignature(req.VEODir, veo.ContentBucket, s, req.DigestName)
			if err != nil {
				return fail(err)
			}
			freshlyWritten = append(freshlyWritten, path)
		}
	}
	if plan.emitHistory {
		for _, s := range req.Signers {
			path, err := emitSignature(req.VEODir, veo.HistoryBucket, s, req.DigestName)
			if err != nil {
				return fail(err)
			}
			freshlyWritten = append(freshlyWritten, path)
		}
	}

	result := Result{OutcomePhrase: plan.outcomePhrase}

	// S3: cleanup
	if req.Pack {
		target := filepath.Join(req.PackOutDir, filepath.Base(filepath.Clean(req.VEODir))+".zip")
		if _, statErr := os.Stat(target); statErr == nil && !req.Overwrite {
			result.PackSkipped = true
		} else {
			archivePath, err := archive.Pack(req.VEODir, req.PackOutDir, req.Overwrite)
			if err != nil {
				return fail(err)
			}
			result.ArchivePath = archivePath
		}
	}

	// Every step succeeded: only now do stale signatures actually leave
	// disk, matching the invariant that a failed task leaves old
	// signatures untouched.
	if plan.deleteContent == deleteAll {
		for _, s := range content.signatures {
			os.Remove(filepath.Join(req.VEODir, s.FileName))
		}
	} else if plan.deleteContent == deleteInvalid {
		for _, s := range content.signatures {
			if !s.Valid {
				os.Remove(filepath.Join(req.VEODir, s.FileName))
			}
		}
	}
	if plan.deleteHistory == deleteAll {
		for _, s := range hist.signatures {
			os.Remove(filepath.Join(req.VEODir, s.FileName))
		}
	}

	return result, nil
}

func loadSignatures(veoDir string) (bucketState, bucketState, error) {
	entries, err := os.ReadDir(veoDir)
	if err != nil {
		return bucketState{}, bucketState{}, veoerr.Wrap(veoerr.HistoryIO, err, "listing %s", veoDir)
	}

	var content, hist bucketState
	content.ok = true
	hist.ok = true

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		bucket, _, ok := xmlsig.ParseFileName(e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(veoDir, e.Name())
		sig, err := xmlsig.Parse(path)
		if err != nil {
			return bucketState{}, bucketState{}, err
		}
		payloadPath := filepath.Join(veoDir, bucket.PayloadName())
		verified, err := xmlsig.Verify(*sig, payloadPath)
		if err != nil {
			return bucketState{}, bucketState{}, err
		}
		if bucket == veo.ContentBucket {
			content.signatures = append(content.signatures, verified)
			content.ok = content.ok && verified.Valid
		} else {
			hist.signatures = append(hist.signatures, verified)
			hist.ok = hist.ok && verified.Valid
		}
	}

	sort.Slice(content.signatures, func(i, j int) bool { return content.signatures[i].Sequence < content.signatures[j].Sequence })
	sort.Slice(hist.signatures, func(i, j int) bool { return hist.signatures[i].Sequence < hist.signatures[j].Sequence })

	return content, hist, nil
}

func buildEvent(req Request, content, hist bucketState) veo.Event {
	now := time.Now()
	initiator := req.UserDesc
	if initiator == "" {
		initiator = currentUser()
	}

	switch req.Task {
	case veo.Verify:
		return veo.Event{
			DateTime:    now,
			EventType:   "Signature verification",
			Initiator:   initiator,
			Description: describeChecked(content.signatures, deleteNone),
		}
	case veo.Renew:
		desc := describeChecked(content.signatures, deleteAll)
		// Renew always replaces the whole history bucket too, but that is
		// worth a word in the event description only when a pre-existing
		// history signature was the reason for it: an already-healthy
		// history bucket being swept along is not news to the operator.
		if !hist.ok {
			desc += " History: " + describeChecked(hist.signatures, deleteAll)
		}
		return veo.Event{
			DateTime:    now,
			EventType:   "VEOContent.xml signature renewal",
			Initiator:   initiator,
			Description: desc,
		}
	case veo.AddEvent:
		return veo.Event{
			DateTime:    now,
			EventType:   "VEOHistory.xml event added",
			Initiator:   initiator,
			Description: req.EventDesc,
		}
	default:
		return veo.Event{}
	}
}

// describeChecked renders one clause per signature naming its filename,
// VALID/FAILED status, and whether it was kept or removed under mode.
func describeChecked(sigs []veo.VerifiedSignature, mode deleteMode) string {
	if len(sigs) == 0 {
		return "No signatures present."
	}
	var b strings.Builder
	for i, s := range sigs {
		status := "FAILED"
		if s.Valid {
			status = "VALID"
		}
		disposition := "kept"
		switch mode {
		case deleteAll:
			disposition = "removed"
		case deleteInvalid:
			if !s.Valid {
				disposition = "removed"
			}
		}
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s: %s (%s)", s.FileName, status, disposition)
	}
	return b.String()
}

type deleteMode int

const (
	deleteNone deleteMode = iota
	deleteInvalid
	deleteAll
)

type signPlan struct {
	emitContent   bool
	emitHistory   bool
	deleteContent deleteMode
	deleteHistory deleteMode
	outcomePhrase string
}

func signingPlan(task veo.Task) signPlan {
	switch task {
	case veo.Verify:
		return signPlan{emitHistory: true, deleteHistory: deleteAll, outcomePhrase: "Signatures verified. VEO history updated."}
	case veo.Renew:
		// The content bucket is fully replaced rather than patched: an old
		// valid signature left in place alongside a freshly emitted one
		// would break the "exactly one signature per signer" invariant.
		return signPlan{emitContent: true, emitHistory: true, deleteContent: deleteAll, deleteHistory: deleteAll, outcomePhrase: "Signatures renewed. VEO history updated."}
	case veo.Create:
		return signPlan{emitContent: true, emitHistory: true, deleteContent: deleteAll, deleteHistory: deleteAll, outcomePhrase: "Signatures created."}
	case veo.AddEvent:
		return signPlan{emitHistory: true, deleteHistory: deleteAll, outcomePhrase: "Event added to history. VEOHistory resigned."}
	default:
		return signPlan{}
	}
}

func emitSignature(veoDir string, bucket veo.Bucket, signer *veo.Signer, digestName string) (string, error) {
	cryptoSigner, ok := credential.Signer(signer)
	if !ok {
		return "", veoerr.New(veoerr.CredentialEmpty, "signer "+signer.Label+" has no usable private key")
	}
	chain, err := credential.Certificates(signer)
	if err != nil {
		return "", err
	}

	payloadPath := filepath.Join(veoDir, bucket.PayloadName())
	payload, err := os.Open(payloadPath)
	if err != nil {
		return "", veoerr.Wrap(veoerr.VerifyIO, err, "opening %s", payloadPath)
	}
	defer payload.Close()

	doc, err := xmlsig.Emit(xmlsig.EmitRequest{
		PayloadName: bucket.PayloadName(),
		Payload:     payload,
		Signer:      cryptoSigner,
		Chain:       chain,
		DigestName:  digestName,
	})
	if err != nil {
		return "", err
	}

	seq, err := xmlsig.NextSequence(veoDir, bucket)
	if err != nil {
		return "", err
	}
	fileName := xmlsig.FileName(bucket, seq)
	outPath := filepath.Join(veoDir, fileName)
	if err := os.WriteFile(outPath, doc, 0o644); err != nil {
		return "", veoerr.Wrap(veoerr.HistoryIO, err, "writing %s", outPath)
	}
	return outPath, nil
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
