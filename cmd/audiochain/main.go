// Command audiochain builds pipes from graph files and runs them offline.
package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pipelined.dev/audiochain"
	"pipelined.dev/audiochain/algos"
	"pipelined.dev/audiochain/config"
	"pipelined.dev/audiochain/log"
)

// environment is shared by all commands.
type environment struct {
	envFile      string
	settingsFile string

	settings config.Settings
	logger   *logrus.Logger
}

// load reads .env file if it exists and then settings.
func (env *environment) load() error {
	if env.envFile != "" {
		if err := godotenv.Load(env.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	s, err := config.Load(env.settingsFile)
	if err != nil {
		return err
	}
	env.settings = s
	env.logger = log.GetLogger()
	if lvl := s.Level(); lvl > env.logger.GetLevel() {
		env.logger.SetLevel(lvl)
	}
	env.logger.Debugf("settings: %s", s.Dump())
	return nil
}

// engine creates engine with built-in templates.
func (env *environment) engine(options ...audiochain.Option) (*audiochain.Engine, error) {
	return audiochain.New(append([]audiochain.Option{
		audiochain.WithLogger(env.logger),
		audiochain.WithSettings(env.settings),
		audiochain.WithRegistry(algos.Registry()),
	}, options...)...)
}

func rootCommand() *cobra.Command {
	env := &environment{}
	root := &cobra.Command{
		Use:           "audiochain",
		Short:         "Audio graph engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return env.load()
		},
	}
	root.PersistentFlags().StringVar(&env.envFile, "env", ".env", "file with environment variables")
	root.PersistentFlags().StringVarP(&env.settingsFile, "settings", "s", "", "yaml file with engine settings")
	root.AddCommand(
		runCommand(env),
		templatesCommand(env),
		paramsCommand(env),
	)
	return root
}

func main() {
	root := rootCommand()
	if err := root.Execute(); err != nil {
		root.PrintErrln("Command failed:", err)
		os.Exit(1)
	}
}
