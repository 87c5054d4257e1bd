package repository

import (
	"github.com/stagepass/identity-service/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	User      UserRepository
	Token     TokenRepository
	OAuthLink OAuthLinkRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres) *Repositories {
	return &Repositories{
		User:      NewUserRepository(db),
		Token:     NewTokenRepository(db),
		OAuthLink: NewOAuthLinkRepository(db),
	}
}
