package typedstore

import "context"

// Key returns the full storage key for key without logging.
func (c *client[TKey]) Key(key TKey) string {
	return c.resolve(context.Background(), key, false)
}

// resolve builds "name:key", falling back to the default key for the zero key.
// A missing key never fails; with warn set it is logged and the key degenerates to "name:".
func (c *client[TKey]) resolve(ctx context.Context, key TKey, warn bool) string {
	if key == "" {
		if c.defaultKey != "" {
			return c.prefix + string(c.defaultKey)
		}
		if warn {
			c.logf("warn", ctx, "missing key for %q and no default key configured, using %q", c.name, c.prefix)
		}
	}
	return c.prefix + string(key)
}
