package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vers-au/veoresign/internal/veoerr"
)

func buildZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestUnpackExtractsUnderVEOName(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "example.veo.zip")
	buildZip(t, zipPath, map[string]string{
		"example.veo/VEOContent.xml": "<content/>",
		"example.veo/VEOHistory.xml": "<history/>",
	})

	outRoot := t.TempDir()
	veoDir, err := Unpack(zipPath, outRoot)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(outRoot, "example.veo"), veoDir)

	content, err := os.ReadFile(filepath.Join(veoDir, "VEOContent.xml"))
	require.NoError(t, err)
	require.Equal(t, "<content/>", string(content))
}

func TestUnpackRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.veo.zip")
	buildZip(t, zipPath, map[string]string{
		"evil.veo/../../escape.txt": "pwned",
	})

	_, err := Unpack(zipPath, t.TempDir())
	require.Error(t, err)
	require.Equal(t, veoerr.ArchiveEscape, veoerr.Of(err))
}

func TestUnpackRejectsMislabeledEntry(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "example.veo.zip")
	buildZip(t, zipPath, map[string]string{
		"other.veo/VEOContent.xml": "<content/>",
	})

	_, err := Unpack(zipPath, t.TempDir())
	require.Error(t, err)
	require.Equal(t, veoerr.ArchiveMislabeled, veoerr.Of(err))
}

func TestUnpackRejectsNonZipSuffix(t *testing.T) {
	_, err := Unpack("/tmp/example.veo", t.TempDir())
	require.Error(t, err)
	require.Equal(t, veoerr.ArchiveMislabeled, veoerr.Of(err))
}

func TestPackThenUnpackRoundTrip(t *testing.T) {
	veoDir := filepath.Join(t.TempDir(), "roundtrip.veo")
	require.NoError(t, os.MkdirAll(veoDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(veoDir, "VEOContent.xml"), []byte("<content/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(veoDir, "VEOContent Signature1.xml"), []byte("<sig/>"), 0o644))

	outDir := t.TempDir()
	zipPath, err := Pack(veoDir, outDir, false)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(outDir, "roundtrip.veo.zip"), zipPath)

	unpacked, err := Unpack(zipPath, t.TempDir())
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(unpacked, "VEOContent Signature1.xml"))
	require.NoError(t, err)
	require.Equal(t, "<sig/>", string(got))
}

func TestPackRefusesToOverwriteWithoutFlag(t *testing.T) {
	veoDir := filepath.Join(t.TempDir(), "dup.veo")
	require.NoError(t, os.MkdirAll(veoDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(veoDir, "VEOContent.xml"), []byte("<content/>"), 0o644))

	outDir := t.TempDir()
	_, err := Pack(veoDir, outDir, false)
	require.NoError(t, err)

	_, err = Pack(veoDir, outDir, false)
	require.Error(t, err)
	require.Equal(t, veoerr.ArchiveExists, veoerr.Of(err))

	_, err = Pack(veoDir, outDir, true)
	require.NoError(t, err)
}
