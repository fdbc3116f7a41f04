package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"reelscope/internal/config"
	"reelscope/internal/deps"
	"reelscope/internal/gate"
	"reelscope/internal/services/llm"
	"reelscope/internal/staging"
)

// HealthChecker is anything that can probe its own backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// minStagingFreeBytes is the free space below which downloads are likely to
// fail part way.
const minStagingFreeBytes = 512 << 20

// CheckAnalyzer verifies that the analysis backend is reachable and the key
// is valid. It uses a 30-second timeout and a single attempt.
func CheckAnalyzer(ctx context.Context, cfg config.Analyzer) Result {
	const name = "Analyzer backend"
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing (results will be degraded)"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	})
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError("analyzer", err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("API reachable (%s)", client.Model())}
}

// CheckStore probes the content store backend.
func CheckStore(ctx context.Context, backend string, store HealthChecker) Result {
	name := fmt.Sprintf("Content store (%s)", backend)
	if store == nil {
		return Result{Name: name, Detail: "not initialized"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := store.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError("store", err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace reports whether dir has room for another download.
func CheckFreeSpace(name, dir string, minFree uint64) Result {
	free, err := staging.FreeBytes(dir)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", dir, err)}
	}
	detail := fmt.Sprintf("%s free", gate.FormatSize(int64(free)))
	if free < minFree {
		return Result{Name: name, Detail: detail + fmt.Sprintf(" (below %s)", gate.FormatSize(int64(minFree)))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the external binaries for the given config.
// Both the daemon status endpoint and the CLI check command use this.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}

func summarizeError(component string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("health check timed out (%s unresponsive)", component)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("health check timed out (%s unreachable)", component)
	}
	var status *llm.StatusError
	if errors.As(err, &status) && (status.StatusCode == 401 || status.StatusCode == 403) {
		return "auth failed (invalid api key)"
	}
	return err.Error()
}
