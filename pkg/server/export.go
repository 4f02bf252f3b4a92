package server

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/quicchat/pkg/store"
)

// UserYAML represents a user in YAML export.
type UserYAML struct {
	Username  string `yaml:"username"`
	CreatedAt string `yaml:"created_at"`
}

// UsersExport is the top-level YAML for user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// ExportUsersYAML exports all registered users as YAML. Digests are never exported.
func ExportUsersYAML(st store.CredentialStore) ([]byte, error) {
	creds, err := st.ListCredentials()
	if err != nil {
		return nil, fmt.Errorf("server: export users: %w", err)
	}

	export := UsersExport{Users: []UserYAML{}}
	for _, c := range creds {
		export.Users = append(export.Users, UserYAML{
			Username:  c.Username,
			CreatedAt: c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return yaml.Marshal(&export)
}
