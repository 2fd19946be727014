// Package health verifies that the run's collaborating services respond
// before any data is read, so a misconfigured endpoint fails fast instead
// of mid-file.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"conductor/internal/cerrors"
)

// Check is one named HTTP endpoint to probe.
type Check struct {
	Name string
	URL  string
}

// CheckAll probes every endpoint concurrently with GET and collects the
// failures into one connection error. A nil return means every service
// answered with a 2xx.
func CheckAll(ctx context.Context, checks []Check) error {
	if len(checks) == 0 {
		return nil
	}

	client := &http.Client{Timeout: 5 * time.Second}
	failures := make([]string, len(checks))

	g, ctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			if err := probe(ctx, client, c.URL); err != nil {
				failures[i] = fmt.Sprintf("%s (%s): %v", c.Name, c.URL, err)
			}
			return nil
		})
	}
	g.Wait()

	var failed []string
	for _, f := range failures {
		if f != "" {
			failed = append(failed, f)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	sort.Strings(failed)

	e := cerrors.Connection(
		fmt.Sprintf("%d of %d services failed their health check", len(failed), len(checks)),
		nil,
	)
	e.WithDetail("failures", strings.Join(failed, "; "))
	return e
}

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
