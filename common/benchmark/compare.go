package benchmark

import "time"

// StandardWorkloads returns common benchmark scenarios
func StandardWorkloads() []Config {
	return []Config{
		{
			Name:            "write-heavy-uniform",
			WorkloadType:    WorkloadWriteHeavy,
			KeyDistribution: DistUniform,
			NumKeys:         1000000,
			KeySize:         16,
			ValueSize:       100,
			Duration:        60 * time.Second,
			Concurrency:     8,
			PreloadKeys:     100000,
			Seed:            12345,
		},
		{
			Name:            "read-heavy-zipfian",
			WorkloadType:    WorkloadReadHeavy,
			KeyDistribution: DistZipfian,
			NumKeys:         1000000,
			KeySize:         16,
			ValueSize:       100,
			Duration:        60 * time.Second,
			Concurrency:     8,
			PreloadKeys:     500000,
			Seed:            12345,
		},
		{
			Name:            "balanced-uniform",
			WorkloadType:    WorkloadBalanced,
			KeyDistribution: DistUniform,
			NumKeys:         1000000,
			KeySize:         16,
			ValueSize:       100,
			Duration:        60 * time.Second,
			Concurrency:     8,
			PreloadKeys:     100000,
			Seed:            12345,
		},
		{
			Name:            "write-only-sequential",
			WorkloadType:    WorkloadWriteOnly,
			KeyDistribution: DistSequential,
			NumKeys:         1000000,
			KeySize:         16,
			ValueSize:       1000, // Larger values
			Duration:        30 * time.Second,
			Concurrency:     1,
			PreloadKeys:     0,
			Seed:            12345,
		},
	}
}

// QuickWorkloads returns faster workloads for testing
func QuickWorkloads() []Config {
	return []Config{
		{
			Name:            "quick-write-heavy",
			WorkloadType:    WorkloadWriteHeavy,
			KeyDistribution: DistUniform,
			NumKeys:         50000,
			KeySize:         16,
			ValueSize:       100,
			Duration:        15 * time.Second,
			Concurrency:     8,
			PreloadKeys:     5000, // Start with some data
			Seed:            12345,
		},
		{
			Name:            "quick-balanced",
			WorkloadType:    WorkloadBalanced,
			KeyDistribution: DistUniform,
			NumKeys:         50000, // 50k keys × 132 bytes = 6.3 MB
			KeySize:         16,
			ValueSize:       100,
			Duration:        15 * time.Second,
			Concurrency:     8,
			PreloadKeys:     10000, // More preload for read-heavy portion
			Seed:            12345,
		},
		{
			Name:            "quick-read-heavy",
			WorkloadType:    WorkloadReadHeavy,
			KeyDistribution: DistZipfian, // Realistic: some keys accessed more
			NumKeys:         50000,
			KeySize:         16,
			ValueSize:       100,
			Duration:        15 * time.Second,
			Concurrency:     8,
			PreloadKeys:     30000, // Need data to read
			Seed:            12345,
		},
	}
}
