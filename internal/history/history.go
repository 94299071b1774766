// Package history implements the History Mutator (component C5): appending
// a single provenance event to VEOHistory.xml. The document is rewritten
// line by line: every line's text is kept, but each line is ended with a
// single "\n", so CRLF line endings become LF and a last line without a
// newline gains one.
package history

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/vers-au/veoresign/internal/veo"
	"github.com/vers-au/veoresign/internal/veoerr"
)

const rootCloseTag = "</vers:VEOHistory>"

const dateTimeLayout = "2006-01-02T15:04:05-07:00"

// AppendEvent splices ev into the VEOHistory.xml document at historyPath.
// The original file is replaced atomically: a sibling temporary file is
// written in full, then renamed over the original. On any failure the
// temporary file is removed and historyPath is left untouched.
func AppendEvent(historyPath string, ev veo.Event) error {
	in, err := os.Open(historyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return veoerr.Wrap(veoerr.HistoryMissing, err, "opening %s", historyPath)
		}
		return veoerr.Wrap(veoerr.HistoryIO, err, "opening %s", historyPath)
	}
	defer in.Close()

	dir := filepath.Dir(historyPath)
	tmpPath := filepath.Join(dir, ".veoresign-history-"+uuid.NewString()+".tmp")
	out, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return veoerr.Wrap(veoerr.HistoryIO, err, "creating temp file for %s", historyPath)
	}

	if err := spliceEvent(in, out, ev); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return veoerr.Wrap(veoerr.HistoryIO, err, "closing temp file for %s", historyPath)
	}

	if err := os.Rename(tmpPath, historyPath); err != nil {
		os.Remove(tmpPath)
		return veoerr.Wrap(veoerr.HistoryIO, err, "replacing %s", historyPath)
	}

	return nil
}

func spliceEvent(in io.Reader, out io.Writer, ev veo.Event) error {
	w := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	spliced := false
	for scanner.Scan() {
		line := scanner.Text()
		if !spliced {
			if idx := strings.Index(line, rootCloseTag); idx >= 0 {
				if _, err := w.WriteString(line[:idx]); err != nil {
					return veoerr.Wrap(veoerr.HistoryIO, err, "writing history prefix")
				}
				if _, err := w.WriteString(eventBlock(ev)); err != nil {
					return veoerr.Wrap(veoerr.HistoryIO, err, "writing event block")
				}
				if _, err := w.WriteString(line[idx:]); err != nil {
					return veoerr.Wrap(veoerr.HistoryIO, err, "writing history suffix")
				}
				if err := w.WriteByte('\n'); err != nil {
					return veoerr.Wrap(veoerr.HistoryIO, err, "writing newline")
				}
				spliced = true
				continue
			}
		}
		if _, err := w.WriteString(line); err != nil {
			return veoerr.Wrap(veoerr.HistoryIO, err, "copying history line")
		}
		if err := w.WriteByte('\n'); err != nil {
			return veoerr.Wrap(veoerr.HistoryIO, err, "writing newline")
		}
	}
	if err := scanner.Err(); err != nil {
		return veoerr.Wrap(veoerr.HistoryIO, err, "reading history")
	}
	if !spliced {
		return veoerr.New(veoerr.HistoryMalformed, "closing "+rootCloseTag+" not found")
	}
	if err := w.Flush(); err != nil {
		return veoerr.Wrap(veoerr.HistoryIO, err, "flushing history")
	}
	return nil
}

func eventBlock(ev veo.Event) string {
	return fmt.Sprintf(
		" <vers:Event>\n"+
			"  <vers:EventDateTime>%s</vers:EventDateTime>\n"+
			"  <vers:EventType>%s</vers:EventType>\n"+
			"  <vers:Initiator>%s</vers:Initiator>\n"+
			"  <vers:Description>\n"+
			"%s\n"+
			"  </vers:Description>\n"+
			" </vers:Event>\n",
		ev.DateTime.Format(dateTimeLayout), escapeXMLText(ev.EventType), escapeXMLText(ev.Initiator), escapeXMLText(ev.Description),
	)
}

// escapeXMLText escapes text content destined for a VEOHistory.xml element
// body. EventType, Initiator and Description all carry operator-supplied
// free text (CLI -e/-u, or the task's own description), so any of them
// containing '&', '<' or '>' must not be spliced in verbatim or the
// resulting document stops being well-formed XML. Only the three
// characters that are never legal unescaped in element content are
// replaced; newlines and tabs in Description are left untouched so the
// block's hand-formatted layout survives.
func escapeXMLText(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return r.Replace(s)
}
