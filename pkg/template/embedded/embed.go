// Package embedded carries the packaged classpath-equivalent template
// fallback tier: the set of message/resource/datatype templates built into
// the module itself, consulted last by a Loader after the override and
// primary filesystem folders.
package embedded

import "embed"

//go:embed message resource datatype v2.3
var FS embed.FS
