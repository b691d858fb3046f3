package submit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscan/fieldscan/internal/checklist"
	"github.com/fieldscan/fieldscan/internal/errors"
)

const sample = `equipment_code: PU
performed_by: tech-1
notes: belt replaced
results:
  - checkpoint_id: 1
    status: godkjent
  - checkpoint_id: 2
    status: avvik
    comment: leaking seal
  - checkpoint_id: 3
    status: ""
`

func TestReadSubmission_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "pu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	s, err := readSubmission(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "PU", s.EquipmentCode)
	require.Len(t, s.Results, 3)
	assert.Equal(t, checklist.StatusOK, s.Results[0].Status)
	assert.Equal(t, checklist.StatusDeviation, s.Results[1].Status)
	assert.Equal(t, checklist.StatusNotAssessed, s.Results[2].Status)
	assert.Equal(t, "leaking seal", s.Results[1].Comment)
}

func TestReadSubmission_Stdin(t *testing.T) {
	t.Parallel()
	s, err := readSubmission(strings.NewReader(sample), "-")
	require.NoError(t, err)
	assert.Equal(t, "belt replaced", s.Notes)
}

func TestReadSubmission_Errors(t *testing.T) {
	t.Parallel()

	_, err := readSubmission(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	_, err = readSubmission(strings.NewReader("results: [unclosed"), "-")
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))

	_, err = readSubmission(strings.NewReader("results:\n  - checkpoint_id: 1\n    status: maybe\n"), "-")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
