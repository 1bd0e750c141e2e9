package repository

import (
	"testing"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/stretchr/testify/require"
)

func TestSaveSightingsThenList(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.AddParticipants([]model.Participant{{Bib: "101", First: "Ada"}}))
	read := sampleRead("E1234", 100)
	require.NoError(t, repo.SaveReads([]model.Read{read}))

	participants, err := repo.Participants()
	require.NoError(t, err)

	require.NoError(t, repo.SaveSightings([]model.Sighting{{Participant: participants[0], Read: read}}))

	sightings, err := repo.Sightings()
	require.NoError(t, err)
	require.Len(t, sightings, 1)
	require.Equal(t, "101", sightings[0].Participant.Bib)
	require.Equal(t, "E1234", sightings[0].Read.Identifier)
}

func TestDeleteAllSightingsClears(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.AddParticipants([]model.Participant{{Bib: "101", First: "Ada"}}))
	read := sampleRead("E1234", 100)
	require.NoError(t, repo.SaveReads([]model.Read{read}))
	participants, err := repo.Participants()
	require.NoError(t, err)
	require.NoError(t, repo.SaveSightings([]model.Sighting{{Participant: participants[0], Read: read}}))

	require.NoError(t, repo.DeleteAllSightings())

	sightings, err := repo.Sightings()
	require.NoError(t, err)
	require.Empty(t, sightings)
}
