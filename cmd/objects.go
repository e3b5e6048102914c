package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/foomo/objectregistry/pkg/backend"
	"github.com/foomo/objectregistry/pkg/registry"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func NewSaveCommand(v *viper.Viper) *cobra.Command {
	var (
		version string
		meta    map[string]string
	)
	cmd := &cobra.Command{
		Use:   "save <name> <path>",
		Short: "Save a file or directory as a new version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []registry.SaveOption{}
			if version != "" {
				opts = append(opts, registry.WithVersion(version))
			}
			if len(meta) > 0 {
				md := make(map[string]any, len(meta))
				for k, val := range meta {
					md[k] = val
				}
				opts = append(opts, registry.WithMetadata(md))
			}
			return withRegistry(cmd.Context(), v, func(r *registry.Registry) error {
				saved, err := r.Save(cmd.Context(), args[0], registry.Path(args[1]), opts...)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), saved)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "Explicit version instead of the next auto version")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "Metadata as key=value")
	return cmd
}

func NewLoadCommand(v *viper.Viper) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "load <name> <dest>",
		Short: "Copy the content of a version into a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd.Context(), v, func(r *registry.Registry) error {
				obj, err := r.Load(cmd.Context(), args[0], version, nil)
				if err != nil {
					return err
				}
				if err := os.MkdirAll(args[1], 0o755); err != nil {
					return errors.Wrapf(err, "failed to create %s", args[1])
				}
				if err := r.Backend().Pull(cmd.Context(), obj.Name, obj.Version, args[1]); err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), obj.Version)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&version, "version", backend.LatestVersion, "Version to load")
	return cmd
}

func NewListCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List object names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd.Context(), v, func(r *registry.Registry) error {
				names, err := r.ListObjects(cmd.Context())
				if err != nil {
					return err
				}
				return printLines(cmd, names)
			})
		},
	}
}

func NewVersionsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <name>",
		Short: "List the versions of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd.Context(), v, func(r *registry.Registry) error {
				versions, err := r.ListVersions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printLines(cmd, versions)
			})
		},
	}
}

func NewInfoCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Print the metadata of every version of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd.Context(), v, func(r *registry.Registry) error {
				info, err := r.Info(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, info)
			})
		},
	}
}

func NewRemoveCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name> [version]",
		Short: "Delete one version or all versions of an object",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var version string
			if len(args) == 2 {
				version = args[1]
			}
			return withRegistry(cmd.Context(), v, func(r *registry.Registry) error {
				return r.Delete(cmd.Context(), args[0], version)
			})
		},
	}
}

func NewMaterializersCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "materializers [class id]",
		Short: "List or register class to materializer mappings",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return errors.New("expected no arguments or <class> <id>")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd.Context(), v, func(r *registry.Registry) error {
				if len(args) == 2 {
					return r.RegisterMaterializer(cmd.Context(), args[0], args[1])
				}
				mapping, err := r.RegisteredMaterializers(cmd.Context())
				if err != nil {
					return err
				}
				classes := make([]string, 0, len(mapping))
				for class := range mapping {
					classes = append(classes, class)
				}
				sort.Strings(classes)
				lines := make([]string, len(classes))
				for i, class := range classes {
					lines[i] = class + "\t" + mapping[class]
				}
				return printLines(cmd, lines)
			})
		},
	}
}

func printLines(cmd *cobra.Command, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
