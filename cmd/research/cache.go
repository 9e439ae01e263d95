package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/searcher/cache"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/redis"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the Redis strategy result cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every cached strategy result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Redis.Enabled {
				return errors.New("cache clear needs redis: set redis.enabled or RE_REDIS_ENABLED=true")
			}
			client, err := pkgredis.NewClient(cmd.Context(), cfg.Redis)
			if err != nil {
				return err
			}
			defer client.Close()

			deleted, err := cache.Clear(cmd.Context(), client)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d cached strategy results.\n", deleted)
			return nil
		},
	})
	return cmd
}
