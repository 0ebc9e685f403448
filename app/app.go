package app

import (
	"database/sql"

	"github.com/go-chi/oauth"
	"github.com/mailmeimmu/echeck-sub000/config"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config
}
