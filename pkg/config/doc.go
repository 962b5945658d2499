// Package config loads the YAML configuration of an imagepool process:
// the memory budget, every pool's parameters, the pressure monitor,
// logging and observability.
//
// # Sections
//
//   - max_memory_mb: budget the pool defaults are derived from
//   - pools: byte_array, memory_chunk, bitmap and single_byte_array pools
//   - monitor: pressure thresholds and polling interval
//   - logging: zap level, encoding and outputs
//   - observability: Prometheus endpoint and stdout tracing
//
// # Loading
//
//	cfg, err := config.LoadConfig("imagepool.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	factory, err := pool.NewFactory(cfg.Pools, registry)
//
// Sections the file leaves out keep defaults sized from max_memory_mb. A
// bucket_sizes table replaces the default table rather than merging
// into it.
//
// # Environment Variable Substitution
//
// Any ${VAR_NAME} in the file is replaced with the variable's value
// before parsing:
//
//	name: ${SERVICE_NAME}
//	observability:
//	  metrics_address: ${METRICS_ADDR}
package config
