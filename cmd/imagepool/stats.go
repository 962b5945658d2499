package main

import (
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/imagepool/pkg/memory"
	"github.com/ajitpratap0/imagepool/pkg/pool"
)

func newStatsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Build every configured pool and print its stats as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			factory, err := pool.NewFactory(cfg.Pools, memory.NewRegistry())
			if err != nil {
				return err
			}
			if err := buildPools(factory); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(factory.Stats())
		},
	}
}

// buildPools forces the factory to create, and register for trimming,
// every pool it can build.
func buildPools(factory *pool.Factory) error {
	if _, err := factory.ByteArrayPool(); err != nil {
		return err
	}
	if _, err := factory.MemoryChunkPool(); err != nil {
		return err
	}
	if _, err := factory.SingleByteArrayPool(); err != nil {
		return err
	}
	_, err := factory.BitmapPool()
	return err
}
