// Package archive implements Safe Archive I/O (component C6): defensive
// extraction of a packed VEO and repackaging of an unpacked VEO directory,
// grounded on the zip-slip guard pattern in terassyi-tomei's extractor.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vers-au/veoresign/internal/veoerr"
)

// Unpack extracts the VEO archive at archivePath into outputRoot/<veoName>,
// where veoName is archivePath's basename with ".zip" stripped. Each entry
// is checked against path traversal and against a top-level directory other
// than veoName just before it is written; extraction stops at the first
// failure, and entries extracted before it are left in place.
func Unpack(archivePath, outputRoot string) (string, error) {
	base := filepath.Base(archivePath)
	veoName := strings.TrimSuffix(base, ".zip")
	if veoName == base {
		return "", veoerr.New(veoerr.ArchiveMislabeled, archivePath+" does not end in .zip")
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return "", veoerr.Wrap(veoerr.ArchiveTruncated, err, "statting %s", archivePath)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", veoerr.Wrap(veoerr.ArchiveTruncated, err, "opening %s", archivePath)
	}
	defer zr.Close()

	var compressedTotal int64
	for _, f := range zr.File {
		compressedTotal += int64(f.CompressedSize64)
	}
	if compressedTotal > info.Size() {
		return "", veoerr.New(veoerr.ArchiveTruncated, fmt.Sprintf("%s: entries sum to %d bytes, archive is only %d", archivePath, compressedTotal, info.Size()))
	}

	absRoot, err := filepath.Abs(filepath.Join(outputRoot, veoName))
	if err != nil {
		return "", veoerr.Wrap(veoerr.ArchiveEscape, err, "resolving output root")
	}

	for _, f := range zr.File {
		if err := unpackEntry(f, veoName, outputRoot, absRoot); err != nil {
			return "", err
		}
	}

	return absRoot, nil
}

func unpackEntry(f *zip.File, veoName, outputRoot, absRoot string) error {
	name := strings.ReplaceAll(f.Name, "\\", "/")
	name = strings.TrimSuffix(name, "/")
	if name == "" {
		return nil
	}

	segments := strings.Split(name, "/")
	if segments[0] != veoName {
		return veoerr.New(veoerr.ArchiveMislabeled, "entry "+f.Name+" is not rooted at "+veoName)
	}

	rest := segments[1:]
	for _, seg := range rest {
		if seg == ".." {
			return veoerr.New(veoerr.ArchiveEscape, "entry "+f.Name+" contains a .. path segment")
		}
	}

	target := filepath.Join(append([]string{outputRoot, veoName}, rest...)...)
	target, err := filepath.Abs(target)
	if err != nil {
		return veoerr.Wrap(veoerr.ArchiveEscape, err, "resolving %s", f.Name)
	}
	if target != absRoot && !strings.HasPrefix(target, absRoot+string(filepath.Separator)) {
		return veoerr.New(veoerr.ArchiveEscape, "entry "+f.Name+" escapes "+outputRoot)
	}
	if len(rest) == 0 {
		return nil
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return veoerr.Wrap(veoerr.ArchiveTruncated, err, "creating directory %s", target)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return veoerr.Wrap(veoerr.ArchiveTruncated, err, "creating directory for %s", target)
	}

	rc, err := f.Open()
	if err != nil {
		return veoerr.Wrap(veoerr.ArchiveTruncated, err, "opening entry %s", f.Name)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return veoerr.Wrap(veoerr.ArchiveTruncated, err, "creating %s", target)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return veoerr.Wrap(veoerr.ArchiveTruncated, err, "writing %s", target)
	}
	if err := out.Close(); err != nil {
		return veoerr.Wrap(veoerr.ArchiveTruncated, err, "closing %s", target)
	}

	modTime := f.Modified
	if !modTime.IsZero() {
		_ = os.Chtimes(target, modTime, modTime)
	}
	return nil
}

// Pack writes veoDir into outputDir/<basename(veoDir)>.zip, with entries
// rooted at the VEO directory name and relative paths and modification
// times preserved. Fails with ArchiveExists if the target already exists
// and overwrite is false.
func Pack(veoDir, outputDir string, overwrite bool) (string, error) {
	veoName := filepath.Base(filepath.Clean(veoDir))
	target := filepath.Join(outputDir, veoName+".zip")

	if _, err := os.Stat(target); err == nil {
		if !overwrite {
			return "", veoerr.New(veoerr.ArchiveExists, target+" already exists")
		}
		if err := os.Remove(target); err != nil {
			return "", veoerr.Wrap(veoerr.ArchiveExists, err, "removing existing %s", target)
		}
	} else if !os.IsNotExist(err) {
		return "", veoerr.Wrap(veoerr.ArchiveExists, err, "statting %s", target)
	}

	var paths []string
	err := filepath.Walk(veoDir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return "", veoerr.Wrap(veoerr.ArchiveTruncated, err, "walking %s", veoDir)
	}
	sort.Strings(paths)

	out, err := os.Create(target)
	if err != nil {
		return "", veoerr.Wrap(veoerr.ArchiveTruncated, err, "creating %s", target)
	}
	zw := zip.NewWriter(out)

	for _, p := range paths {
		if err := packEntry(zw, veoDir, veoName, p); err != nil {
			zw.Close()
			out.Close()
			os.Remove(target)
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(target)
		return "", veoerr.Wrap(veoerr.ArchiveTruncated, err, "finalizing %s", target)
	}
	if err := out.Close(); err != nil {
		os.Remove(target)
		return "", veoerr.Wrap(veoerr.ArchiveTruncated, err, "closing %s", target)
	}

	return target, nil
}

func packEntry(zw *zip.Writer, veoDir, veoName, p string) error {
	rel, err := filepath.Rel(veoDir, p)
	if err != nil {
		return veoerr.Wrap(veoerr.ArchiveTruncated, err, "relativizing %s", p)
	}

	fi, err := os.Stat(p)
	if err != nil {
		return veoerr.Wrap(veoerr.ArchiveTruncated, err, "statting %s", p)
	}

	entryName := veoName
	if rel != "." {
		entryName = veoName + "/" + filepath.ToSlash(rel)
	}

	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return veoerr.Wrap(veoerr.ArchiveTruncated, err, "building header for %s", p)
	}
	hdr.Name = entryName
	hdr.Method = zip.Deflate
	hdr.Modified = fi.ModTime()

	if fi.IsDir() {
		hdr.Name += "/"
		_, err := zw.CreateHeader(hdr)
		return err
	}

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return veoerr.Wrap(veoerr.ArchiveTruncated, err, "writing header for %s", entryName)
	}

	f, err := os.Open(p)
	if err != nil {
		return veoerr.Wrap(veoerr.ArchiveTruncated, err, "opening %s", p)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return veoerr.Wrap(veoerr.ArchiveTruncated, err, "writing %s into archive", p)
	}
	return nil
}
