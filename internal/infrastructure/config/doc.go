/*
Package config loads host configuration.

Sources, lowest precedence first:
  - struct defaults (`default:` tags, mirrored by Default)
  - ZAPIC_* environment variables (12-factor), e.g. ZAPIC_PAGE_URL,
    ZAPIC_FETCH_STALE_THRESHOLD, ZAPIC_BRIDGE_DEBOUNCE
  - an optional TOML file passed to LoadFile
  - CLI flags applied by cmd/zapic

Usage:

	cfg, err := config.LoadFile("zapic.toml")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
*/
package config
