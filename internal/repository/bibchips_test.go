package repository

import (
	"testing"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/stretchr/testify/require"
)

func TestAddBibChipsThenList(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.AddBibChips([]model.BibChip{
		{Bib: "101", Chip: "E1234"},
		{Bib: "102", Chip: "E5678"},
	}))

	all, err := repo.BibChips()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestAddBibChipsReplacesConflictingBibOrChip(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.AddBibChips([]model.BibChip{{Bib: "101", Chip: "E1234"}}))
	// Same bib, new chip: the old mapping for bib 101 is replaced, not duplicated.
	require.NoError(t, repo.AddBibChips([]model.BibChip{{Bib: "101", Chip: "E9999"}}))

	all, err := repo.BibChips()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "E9999", all[0].Chip)
}

func TestDeleteAllBibChipsClears(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.AddBibChips([]model.BibChip{{Bib: "101", Chip: "E1234"}}))
	require.NoError(t, repo.DeleteAllBibChips())

	all, err := repo.BibChips()
	require.NoError(t, err)
	require.Empty(t, all)
}
