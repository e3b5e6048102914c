package cmd

import (
	"fmt"
	"time"

	"github.com/foomo/objectregistry/pkg/lock"
	"github.com/foomo/objectregistry/pkg/registry"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewLockCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Acquire, check and release distributed locks",
	}
	cmd.AddCommand(
		newLockAcquireCommand(v),
		newLockCheckCommand(v),
		newLockReleaseCommand(v),
	)
	return cmd
}

func newLockAcquireCommand(v *viper.Viper) *cobra.Command {
	var (
		holder string
		shared bool
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "acquire <key>",
		Short: "Acquire a lock and print the holder id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if holder == "" {
				holder = uuid.NewString()
			}
			var opts []lock.AcquireOption
			if ttl > 0 {
				opts = append(opts, lock.WithTTL(ttl))
			}
			return withRegistry(cmd.Context(), v, func(r *registry.Registry) error {
				timeout := lockTimeoutFlag(v)
				ok, err := r.Backend().Acquire(cmd.Context(), args[0], holder, timeout, shared, opts...)
				if err != nil {
					return err
				}
				if !ok {
					return errors.Wrapf(registry.ErrLockTimeout, "failed to lock %s within %s", args[0], timeout)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), holder)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&holder, "holder", "", "Holder id, generated if empty")
	cmd.Flags().BoolVar(&shared, "shared", false, "Acquire a shared lock")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Lock lifetime, defaults to the lock timeout")
	return cmd
}

func newLockCheckCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check <key>",
		Short: "Print the current holder of a lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd.Context(), v, func(r *registry.Registry) error {
				locked, holder, err := r.Backend().Check(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !locked {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "unlocked")
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "locked\t"+holder)
				return err
			})
		},
	}
}

func newLockReleaseCommand(v *viper.Viper) *cobra.Command {
	var holder string
	cmd := &cobra.Command{
		Use:   "release <key>",
		Short: "Release a lock held by a holder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd.Context(), v, func(r *registry.Registry) error {
				return r.Backend().Release(cmd.Context(), args[0], holder)
			})
		},
	}
	cmd.Flags().StringVar(&holder, "holder", "", "Holder id printed by acquire")
	_ = cmd.MarkFlagRequired("holder")
	return cmd
}
