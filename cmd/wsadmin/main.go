// Package main is the operator CLI: schema migrations, seeding agencies,
// issuing invitations and granting global roles.
package main

import (
	"context"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wondershark/backend/config"
)

var (
	version = "dev"
	cli     struct {
		Migrate      MigrateCmd      `cmd:"" help:"Apply pending database migrations"`
		CreateAgency CreateAgencyCmd `cmd:"" help:"Create an agency and its owner account"`
		Invite       InviteCmd       `cmd:"" help:"Issue an invitation and print its acceptance URL"`
		GrantRole    GrantRoleCmd    `cmd:"" help:"Grant a global role to a user"`
		Debug        bool            `help:"Enable debug logging."`
		Version      kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("wsadmin"),
		kong.Description("WonderShark operator tools."),
		kong.Vars{"version": version},
		kong.BindTo(ctx, (*context.Context)(nil)))

	logger := newLogger(cli.Debug)
	defer logger.Sync()

	cfg, err := config.Load()
	cmd.FatalIfErrorf(err)
	err = cmd.Run(&Globals{Config: cfg, Logger: logger})
	cmd.FatalIfErrorf(err)
}

func newLogger(debug bool) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, _ := config.Build()
	return logger
}
