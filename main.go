package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tantalor/netlify-file-server/pkg/admin"
	"github.com/tantalor/netlify-file-server/pkg/config"
	"github.com/tantalor/netlify-file-server/pkg/policy"
	"github.com/tantalor/netlify-file-server/pkg/storage/database"
)

func setupLogs(logConfig config.Logging) {
	// Equivalent of Lshortfile
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		short := file
		for i := len(file) - 1; i > 0; i-- {
			if file[i] == '/' {
				short = file[i+1:]
				break
			}
		}
		file = short
		return file + ":" + strconv.Itoa(line)
	}

	logLevel := zerolog.InfoLevel
	switch logConfig.Level {
	case "panic":
		logLevel = zerolog.PanicLevel
	case "fatal":
		logLevel = zerolog.FatalLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "debug":
		logLevel = zerolog.DebugLevel
	case "trace":
		logLevel = zerolog.TraceLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if logConfig.JSONFormat {
		log.Logger = log.With().Caller().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Caller().Logger()
	}
}

const usage = `Usage: fileserver <config.yaml> <command> [args]

Commands:

  new_key <email|key>
    Generate a new API key for the user, addressed by email or current key.
    Creates the user when the email is unknown. The previous key is invalid
    immediately; run build and redeploy for the gate to notice.

  add_grant <email|key|all> <filepath>
    Grant permission to read the file. An unknown email is created with a
    fresh key first. "all" grants access to every user with a valid key.

  revoke_grant <email|key|all> <filepath>
    Revoke a previously granted permission. Revoking "all" removes only the
    public grant; per-user grants for the same file are untouched.

  print
    Print all grants as comma-separated values: Email, Api Key, File Path.
    Public grants show NULL for email and key.

  export
    Print the compiled policy artifact as JSON.

  build
    Compile the policy artifact into the gate's generated source file.

  seed
    Fill the store with fixture data.
`

func run() error {
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "help" {
		fmt.Fprint(os.Stderr, usage)
		return nil
	}
	if len(args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return admin.ErrUsage
	}

	conf, err := config.Load(args[0])
	if err != nil {
		return fmt.Errorf("unable to load config file: %w", err)
	}
	setupLogs(conf.Logging)

	db, err := database.NewConnection(conf.Database)
	if err != nil {
		return err
	}
	if err := db.HealthCheck(); err != nil {
		return err
	}

	tool := admin.NewTool(db, policy.NewCompiler(db, conf.Compiler), os.Stdout)

	ctx := context.Background()
	command, rest := args[1], args[2:]

	switch command {
	case "new_key":
		if len(rest) != 1 {
			return fmt.Errorf("%w: new_key takes 1 arg", admin.ErrUsage)
		}
		return tool.NewKey(ctx, rest[0])
	case "add_grant":
		if len(rest) != 2 {
			return fmt.Errorf("%w: add_grant takes 2 args", admin.ErrUsage)
		}
		return tool.AddGrant(ctx, rest[0], rest[1])
	case "revoke_grant":
		if len(rest) != 2 {
			return fmt.Errorf("%w: revoke_grant takes 2 args", admin.ErrUsage)
		}
		return tool.RevokeGrant(ctx, rest[0], rest[1])
	case "print":
		return tool.PrintGrants(ctx)
	case "export":
		return tool.Export(ctx)
	case "build":
		return tool.Build(ctx)
	case "seed":
		return tool.Seed(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("%w: unknown command %q", admin.ErrUsage, command)
	}
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, admin.ErrUsage) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Command failed")
	}
}
