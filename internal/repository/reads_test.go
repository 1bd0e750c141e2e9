package repository

import (
	"testing"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/stretchr/testify/require"
)

func sampleRead(identifier string, seconds uint64) model.Read {
	return model.Read{
		Identifier: identifier, Seconds: seconds, Milliseconds: 0,
		ReaderSeconds: seconds, ReaderMilliseconds: 0,
		Antenna: 1, Reader: "finish-line", RSSI: "-40",
		IdentType: model.IdentTypeChip, Kind: model.ReadKindReader,
		Status: model.ReadStatusUnused,
	}
}

func TestSaveReadsThenAllReads(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.SaveReads([]model.Read{sampleRead("E1234", 100), sampleRead("E5678", 101)}))

	all, err := repo.AllReads()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSaveReadsDropsDuplicateIdentifierSecondsMilliseconds(t *testing.T) {
	repo := testRepo(t)

	read := sampleRead("E1234", 100)
	require.NoError(t, repo.SaveReads([]model.Read{read}))
	require.NoError(t, repo.SaveReads([]model.Read{read}))

	all, err := repo.AllReads()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestReadsBetweenFiltersBySecondsInclusive(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.SaveReads([]model.Read{
		sampleRead("E1", 100),
		sampleRead("E2", 150),
		sampleRead("E3", 200),
	}))

	reads, err := repo.ReadsBetween(100, 150)
	require.NoError(t, err)
	require.Len(t, reads, 2)
}

func TestUsefulReadsExcludesTooSoon(t *testing.T) {
	repo := testRepo(t)

	tooSoon := sampleRead("E1", 100)
	tooSoon.Status = model.ReadStatusTooSoon
	require.NoError(t, repo.SaveReads([]model.Read{tooSoon, sampleRead("E2", 101)}))

	useful, err := repo.UsefulReads()
	require.NoError(t, err)
	require.Len(t, useful, 1)
	require.Equal(t, "E2", useful[0].Identifier)
}

func TestNotUploadedReadsAndMarkUploaded(t *testing.T) {
	repo := testRepo(t)

	read := sampleRead("E1", 100)
	require.NoError(t, repo.SaveReads([]model.Read{read}))

	notUploaded, err := repo.NotUploadedReads()
	require.NoError(t, err)
	require.Len(t, notUploaded, 1)

	require.NoError(t, repo.MarkUploaded(notUploaded))

	notUploaded, err = repo.NotUploadedReads()
	require.NoError(t, err)
	require.Empty(t, notUploaded)
}

func TestResetUploadStateClearsFlag(t *testing.T) {
	repo := testRepo(t)

	read := sampleRead("E1", 100)
	require.NoError(t, repo.SaveReads([]model.Read{read}))
	require.NoError(t, repo.MarkUploaded([]model.Read{read}))

	require.NoError(t, repo.ResetUploadState())

	notUploaded, err := repo.NotUploadedReads()
	require.NoError(t, err)
	require.Len(t, notUploaded, 1)
}

func TestUpdateReadStatusesWritesBackClassification(t *testing.T) {
	repo := testRepo(t)

	read := sampleRead("E1", 100)
	require.NoError(t, repo.SaveReads([]model.Read{read}))

	read.Status = model.ReadStatusUsed
	require.NoError(t, repo.UpdateReadStatuses([]model.Read{read}))

	all, err := repo.AllReads()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, model.ReadStatusUsed, all[0].Status)
}

func TestDeleteReadsBetweenAndDeleteAllReads(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.SaveReads([]model.Read{sampleRead("E1", 100), sampleRead("E2", 200)}))
	deleted, err := repo.DeleteReadsBetween(100, 100)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	all, err := repo.AllReads()
	require.NoError(t, err)
	require.Len(t, all, 1)

	deleted, err = repo.DeleteAllReads()
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
	all, err = repo.AllReads()
	require.NoError(t, err)
	require.Empty(t, all)
}
