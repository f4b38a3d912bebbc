package main

import (
	"errors"
	"fmt"

	"github.com/UnknownOlympus/waypoint/internal/address"
	"github.com/UnknownOlympus/waypoint/internal/cache"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/UnknownOlympus/waypoint/internal/resolver"
	"github.com/spf13/cobra"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prepare the geocode cache",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create the cache table if it does not exist",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withCache(cmd, func(c cache.Cache) error {
					n, err := c.Len(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "cache ready (%s): %d entries\n", a.cfg.Cache.Backend, n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print the number of cached addresses",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withCache(cmd, func(c cache.Cache) error {
					n, err := c.Len(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "lookup <address>",
			Short: "Print the cached coordinates of a canonical address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withCache(cmd, func(c cache.Cache) error {
					coords, err := c.Lookup(cmd.Context(), args[0])
					if errors.Is(err, cache.ErrMiss) {
						return fmt.Errorf("%q: %w", args[0], err)
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%v,%v\n", coords.Latitude, coords.Longitude)
					return nil
				})
			},
		},
	)

	return cmd
}

// newResolveCmd resolves a single street pair the same way a table row is
// resolved, cache included.
func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <primary street> [secondary street]",
		Short: "Resolve one street pair to coordinates",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			row := models.Row{Primary: args[0]}
			if len(args) == 2 {
				row.Secondary = args[1]
			}

			client, err := a.newClient()
			if err != nil {
				return err
			}

			return a.withCache(cmd, func(c cache.Cache) error {
				r := resolver.New(address.NewBuilder(a.cfg.Region), c, client, a.log, a.metrics)
				result := r.ResolveRow(cmd.Context(), row)
				if !result.IsResolved() {
					return fmt.Errorf("%w: %s", errUnresolved, result.Outcome)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%v,%v\t%s\n",
					result.Coordinates.Latitude, result.Coordinates.Longitude, result.Outcome)
				return nil
			})
		},
	}
}

var errUnresolved = errors.New("address could not be resolved")

func (a *app) withCache(cmd *cobra.Command, fn func(cache.Cache) error) error {
	opener, err := cache.NewOpener(a.cacheOptions(), a.log)
	if err != nil {
		return err
	}

	c, err := opener(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			a.log.ErrorContext(cmd.Context(), "Failed to close cache", "error", closeErr)
		}
	}()

	return fn(c)
}
