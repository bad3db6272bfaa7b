package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/esimov/pixel-particles/config"
	"github.com/esimov/pixel-particles/logger"
)

// app carries the state shared by the subcommands.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "pixel-particles",
		Short:         "Turn an image into particles that scatter around the pointer.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(a.v, cmd); err != nil {
				return err
			}
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg

			// The terminal renderer owns stdout, so logs only go to the file then.
			quiet := cmd.Name() == "run" && cfg.Renderer.Kind == config.RendererTerminal
			logger.InitializeStdout(cfg.Logger, quiet)
			logger.L().Debug("configuration loaded", zap.String("file", a.v.ConfigFileUsed()))
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newRunCmd(a), newSampleCmd(a), newVersionCmd())
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	err := newRootCmd().Execute()
	defer logger.Sync()
	if err != nil {
		logger.L().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const configKey = "config_key"

// annotate marks the flags of cmd with the configuration key they override.
func annotate(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		if err := cmd.Flags().SetAnnotation(flag, configKey, []string{key}); err != nil {
			panic(fmt.Sprintf("annotating flag %s: %v", flag, err))
		}
	}
}

// bindFlags binds the annotated flags of the command being executed. Binding at
// execution time keeps commands sharing a key from overriding each other.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys, ok := f.Annotations[configKey]; ok && err == nil {
			err = v.BindPFlag(keys[0], f)
		}
	})
	return err
}
