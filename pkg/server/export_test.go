package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/quicchat/pkg/store"
)

func TestExportUsersYAML(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.CreateCredential("bob", []byte("digest-b")))
	require.NoError(t, st.CreateCredential("alice", []byte("digest-a")))

	data, err := ExportUsersYAML(st)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "digest")

	var export UsersExport
	require.NoError(t, yaml.Unmarshal(data, &export))
	require.Len(t, export.Users, 2)
	assert.Equal(t, "alice", export.Users[0].Username)
	assert.Equal(t, "bob", export.Users[1].Username)
	assert.NotEmpty(t, export.Users[0].CreatedAt)
}

func TestExportUsersYAMLEmpty(t *testing.T) {
	data, err := ExportUsersYAML(store.NewMemory())
	require.NoError(t, err)
	assert.Equal(t, "users: []\n", string(data))
}
