// Package profiling exposes pprof on a side port, gated behind an
// environment flag so production stays closed by default.
package profiling

import (
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof handlers
	"os"

	"github.com/aagii9912/smarthub-sub002/internal/logger"
)

// Start launches the pprof server when ENABLE_PROFILING=true. It binds to
// localhost only; profiles are pulled through a tunnel, never exposed.
func Start(log logger.Logger) {
	if os.Getenv("ENABLE_PROFILING") != "true" {
		return
	}

	port := os.Getenv("PPROF_PORT")
	if port == "" {
		port = "6060"
	}
	addr := "localhost:" + port

	go func() {
		log.Info("pprof server listening", logger.String("address", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Error("pprof server error", logger.Error(err))
		}
	}()
}
