package repository

import (
	"testing"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/stretchr/testify/require"
)

func TestSaveAPIThenListInStorageOrder(t *testing.T) {
	repo := testRepo(t)

	first := model.RemoteAPI{Name: "chronokeep", Kind: model.RemoteKindChronokeep, URI: "https://chronokeep.example/api", Token: "tok1"}
	second := model.RemoteAPI{Name: "self-hosted", Kind: model.RemoteKindChronokeepSelf, URI: "https://self.example/api", Token: "tok2"}

	firstID, err := repo.SaveAPI(first)
	require.NoError(t, err)
	_, err = repo.SaveAPI(second)
	require.NoError(t, err)

	apis, err := repo.RemoteAPIs()
	require.NoError(t, err)
	require.Len(t, apis, 2)
	require.Equal(t, firstID, apis[0].ID)
	require.Equal(t, "chronokeep", apis[0].Name)
}

func TestDeleteAPIRemovesIt(t *testing.T) {
	repo := testRepo(t)

	id, err := repo.SaveAPI(model.RemoteAPI{Name: "temp", Kind: model.RemoteKindChronokeep, URI: "https://x.example"})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteAPI(id))

	apis, err := repo.RemoteAPIs()
	require.NoError(t, err)
	require.Empty(t, apis)
}
