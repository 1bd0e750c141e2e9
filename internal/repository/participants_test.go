package repository

import (
	"testing"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/stretchr/testify/require"
)

func TestAddParticipantsThenList(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.AddParticipants([]model.Participant{
		{Bib: "101", First: "Ada", Last: "Lovelace", Distance: "5K"},
		{Bib: "102", First: "Alan", Last: "Turing", Distance: "10K"},
	}))

	all, err := repo.Participants()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestAddParticipantsUpsertsByBib(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.AddParticipants([]model.Participant{{Bib: "101", First: "Ada", Distance: "5K"}}))
	require.NoError(t, repo.AddParticipants([]model.Participant{{Bib: "101", First: "Ada Updated", Distance: "10K"}}))

	all, err := repo.Participants()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "Ada Updated", all[0].First)
	require.Equal(t, "10K", all[0].Distance)
}

func TestDeleteAllParticipantsClears(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.AddParticipants([]model.Participant{{Bib: "101", First: "Ada"}}))
	require.NoError(t, repo.DeleteAllParticipants())

	all, err := repo.Participants()
	require.NoError(t, err)
	require.Empty(t, all)
}
