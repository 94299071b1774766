package batch

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vers-au/veoresign/internal/logging"
	"github.com/vers-au/veoresign/internal/veo"
)

func TestValidateRequiresAtLeastOneSigner(t *testing.T) {
	cfg := Config{Task: veo.Verify}
	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "no signers configured"))
}

func TestValidateRequiresEventDescForAddEvent(t *testing.T) {
	cfg := Config{Task: veo.AddEvent, Signers: []*veo.Signer{{}}}
	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "AddEvent requires"))
}

func TestValidateAggregatesBothProblems(t *testing.T) {
	cfg := Config{Task: veo.AddEvent}
	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "no signers configured"))
	require.True(t, strings.Contains(err.Error(), "AddEvent requires"))
}

func TestValidatePasses(t *testing.T) {
	cfg := Config{Task: veo.Verify, Signers: []*veo.Signer{{}}}
	require.NoError(t, cfg.Validate())
}

func TestRunReportsUnreadableInputWithoutStoppingTheBatch(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{
		Task:      veo.Verify,
		Signers:   []*veo.Signer{{}},
		OutputDir: t.TempDir(),
		Logger:    logging.New(&buf, "info"),
	}

	code := Run(cfg, []string{filepath.Join(t.TempDir(), "missing.veo")})
	require.Equal(t, 0, code, "a per-VEO failure is reported, not a batch-fatal exit")
	require.True(t, strings.Contains(buf.String(), "FAILED"))
}

func TestRunReturnsOneOnInvalidConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Task: veo.Verify, Logger: logging.New(&buf, "info")}
	code := Run(cfg, []string{"whatever.veo"})
	require.Equal(t, 1, code)
}
