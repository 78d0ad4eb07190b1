package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the configuration is sufficient for the given command
// mode ("collect" or "runs"). It collects all problems rather than stopping
// at the first.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "collect":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Extract.Primary == "llm" && c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required when extract.primary is llm")
		}
		if c.Extract.Primary != "llm" && c.Extract.Primary != "pattern" {
			problems = append(problems, fmt.Sprintf("extract.primary must be llm or pattern, got %q", c.Extract.Primary))
		}
		if c.Collect.MaxConcurrentRegions < 1 || c.Collect.MaxConcurrentRegions > 20 {
			problems = append(problems, "collect.max_concurrent_regions must be between 1 and 20")
		}
		if c.Collect.MaxConcurrentFetches < 1 || c.Collect.MaxConcurrentFetches > 50 {
			problems = append(problems, "collect.max_concurrent_fetches must be between 1 and 50")
		}
		if c.Extract.MaxConcurrent < 1 || c.Extract.MaxConcurrent > 32 {
			problems = append(problems, "extract.max_concurrent must be between 1 and 32")
		}
		if c.Discovery.MaxPages < 1 {
			problems = append(problems, "discovery.max_pages must be >= 1")
		}
		if c.Discovery.MinDelayMillis > c.Discovery.MaxDelayMillis {
			problems = append(problems, "discovery.min_delay_millis must not exceed max_delay_millis")
		}
	case "runs":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
		problems = append(problems, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}
