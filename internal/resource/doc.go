// Package resource implements the resource controller for global limits.
//
// The controller manages three resource types:
//
//   - Memory: bytes of resident event data held by the disk buffer (non-blocking, fail-fast)
//   - Concurrency: worker slots for parallel ingestion and binning
//   - IO: token bucket limiting backing-file throughput
//
// # Memory Management
//
// AcquireMemory is non-blocking and returns ErrMemoryLimitExceeded if the
// limit would be exceeded. The disk buffer reacts by writing and evicting
// old boxes before retrying:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB limit
//	})
//
//	if err := rc.AcquireMemory(n); err != nil {
//	    // evict, then retry
//	}
//	defer rc.ReleaseMemory(n)
//
// # Worker Limits
//
//	if err := rc.AcquireBackground(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBackground()
//
// # IO Rate Limiting
//
//	rc := resource.NewController(resource.Config{
//	    IOLimitBytesPerSec: 100 * 1024 * 1024, // 100MB/s
//	})
//	if err := rc.AcquireIO(ctx, len(block)); err != nil {
//	    return err
//	}
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
