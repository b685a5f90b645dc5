package catalog

// Config holds configuration for the Gateway.
type Config struct {
	// Table is the name of the catalog table. All collections share it,
	// partitioned by the collection attribute with the record id as sort key.
	// Default: "codex_catalog"
	Table string

	// IndexPrefix names the GSIs used for sorted scans: a query sorted by
	// field f reads the index IndexPrefix + f (collection as partition key,
	// f as sort key). Default: "by_"
	IndexPrefix string
}

// DefaultConfig returns the table layout the catalog deploys with.
func DefaultConfig() Config {
	return Config{
		Table:       "codex_catalog",
		IndexPrefix: "by_",
	}
}

// validate ensures config values are usable, filling defaults in place.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "codex_catalog"
	}
	if c.IndexPrefix == "" {
		c.IndexPrefix = "by_"
	}
}
