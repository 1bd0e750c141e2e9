package repository

import (
	"net"
	"testing"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/stretchr/testify/require"
)

func TestSaveReaderThenGetByID(t *testing.T) {
	repo := testRepo(t)

	reader := &model.Reader{
		Nickname:    "finish-line",
		Kind:        model.KindLLRP,
		IPAddress:   net.ParseIP("192.168.1.50"),
		Port:        5084,
		AutoConnect: true,
	}
	id, err := repo.SaveReader(reader)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := repo.Reader(id)
	require.NoError(t, err)
	require.Equal(t, "finish-line", got.Nickname)
	require.Equal(t, model.KindLLRP, got.Kind)
	require.True(t, got.AutoConnect)
	require.Equal(t, "192.168.1.50", got.IPAddress.String())
}

func TestSaveReaderWithIDUpdatesInPlace(t *testing.T) {
	repo := testRepo(t)

	reader := &model.Reader{Nickname: "start-line", Kind: model.KindLLRP, IPAddress: net.ParseIP("10.0.0.1"), Port: 5084}
	id, err := repo.SaveReader(reader)
	require.NoError(t, err)

	reader.ID = id
	reader.Nickname = "start-line-renamed"
	_, err = repo.SaveReader(reader)
	require.NoError(t, err)

	readers, err := repo.Readers()
	require.NoError(t, err)
	require.Len(t, readers, 1)
	require.Equal(t, "start-line-renamed", readers[0].Nickname)
}

func TestDeleteReaderRemovesIt(t *testing.T) {
	repo := testRepo(t)

	reader := &model.Reader{Nickname: "temp", Kind: model.KindLLRP, IPAddress: net.ParseIP("10.0.0.2"), Port: 5084}
	id, err := repo.SaveReader(reader)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteReader(id))

	readers, err := repo.Readers()
	require.NoError(t, err)
	require.Empty(t, readers)
}
