package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customError "github.com/unilib/circulation-engine/pkg/errors"
)

func TestParseStatus_EveryAliasResolves(t *testing.T) {
	cases := map[Status][]string{
		StatusBorrowed: {"borrowed", "借阅中", "正在借阅", "current", "在借"},
		StatusReturned: {"returned", "已归还", "归还", "已还"},
		StatusOverdue:  {"overdue", "已逾期", "逾期", "逾期归还"},
		StatusRenewed:  {"renewed", "已续借", "续借"},
	}

	for want, aliases := range cases {
		for _, alias := range aliases {
			got, err := ParseStatus(alias)
			require.NoError(t, err, "alias %q", alias)
			assert.Equal(t, want, got, "alias %q", alias)
		}
	}
}

func TestParseStatus_TrimsAndCaseFolds(t *testing.T) {
	for _, raw := range []string{"  borrowed  ", "BORROWED", "Borrowed", "\tCURRENT\n", " 借阅中 "} {
		got, err := ParseStatus(raw)
		require.NoError(t, err, "input %q", raw)
		assert.Equal(t, StatusBorrowed, got, "input %q", raw)
	}
}

func TestParseStatus_UnknownFailsClosed(t *testing.T) {
	for _, raw := range []string{"lost", "", "   ", "borroweddd", "已丢失", "return_date"} {
		_, err := ParseStatus(raw)
		require.Error(t, err, "input %q", raw)
		assert.True(t, errors.Is(err, customError.ErrUnrecognizedStatus), "input %q", raw)
		assert.Equal(t, customError.KindValidation, customError.KindOf(err), "input %q", raw)
	}
}

func TestStorageLabel_RoundTrips(t *testing.T) {
	for _, status := range []Status{StatusBorrowed, StatusReturned, StatusOverdue, StatusRenewed} {
		label := status.StorageLabel()
		require.NotEmpty(t, label)

		got, err := ParseStatus(label)
		require.NoError(t, err)
		assert.Equal(t, status, got)
	}
}

func TestCompatibleStorageValues_CoverBothVocabularies(t *testing.T) {
	values := StatusBorrowed.CompatibleStorageValues()

	assert.Contains(t, values, "borrowed")
	assert.Contains(t, values, "借阅中")
	assert.Contains(t, values, "在借")

	// every compatible value must itself parse back to the same status
	for _, v := range values {
		got, err := ParseStatus(v)
		require.NoError(t, err)
		assert.Equal(t, StatusBorrowed, got)
	}
}

func TestCompatibleStorageValues_ReturnsCopy(t *testing.T) {
	values := StatusReturned.CompatibleStorageValues()
	values[0] = "tampered"

	fresh := StatusReturned.CompatibleStorageValues()
	assert.NotContains(t, fresh, "tampered")
}

func TestIsAdminAssignable(t *testing.T) {
	assert.True(t, StatusBorrowed.IsAdminAssignable())
	assert.True(t, StatusReturned.IsAdminAssignable())
	assert.True(t, StatusOverdue.IsAdminAssignable())
	assert.False(t, StatusRenewed.IsAdminAssignable())
}
