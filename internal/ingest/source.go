package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// maxSourceSize caps seed documents read from disk or the network.
const maxSourceSize = 64 << 20

// ReadSource reads a seed document from a local path or an http(s) URL.
func ReadSource(ctx context.Context, client *http.Client, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		log.Debug().Str("path", source).Msg("Reading seed from file")

		f, err := os.Open(source)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()

		return io.ReadAll(io.LimitReader(f, maxSourceSize))
	}

	if client == nil {
		client = http.DefaultClient
	}

	log.Info().Str("source", source).Msg("Fetching seed document")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	// Explicitly ignore close error as it's a read-only operation
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", source, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxSourceSize))
}
