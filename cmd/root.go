package cmd

import (
	"strings"

	"github.com/foomo/keel/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// NewRootCommand represents the base command when called without any subcommands
func NewRootCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:           "objectregistry",
		Short:         "Versioned object registry on local disk, S3 and cloud blob stores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if filename := configFlag(v); filename != "" {
				v.SetConfigFile(filename)
				if err := v.ReadInConfig(); err != nil {
					return errors.Wrapf(err, "failed to read config %s", filename)
				}
			}
			zap.ReplaceGlobals(log.NewLogger(
				logLevelFlag(v),
				logFormatFlag(v),
			))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	addLogLevelFlag(flags, v)
	addLogFormatFlag(flags, v)
	addConfigFlag(flags, v)
	addBackendFlag(flags, v)
	addLocalDirFlag(flags, v)
	addS3BucketFlag(flags, v)
	addS3PrefixFlag(flags, v)
	addS3EndpointFlag(flags, v)
	addS3RegionFlag(flags, v)
	addS3PathStyleFlag(flags, v)
	addBlobBucketFlag(flags, v)
	addBlobPrefixFlag(flags, v)
	addLockTimeoutFlag(flags, v)

	cmd.AddCommand(
		NewSaveCommand(v),
		NewLoadCommand(v),
		NewListCommand(v),
		NewVersionsCommand(v),
		NewInfoCommand(v),
		NewRemoveCommand(v),
		NewLockCommand(v),
		NewMaterializersCommand(v),
		NewVersionCommand(),
	)

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		log.Logger().Fatal("failed to run command", zap.Error(err))
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}
