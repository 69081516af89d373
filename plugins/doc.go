// Package plugins hosts validator plugin subpackages. It contains no
// runtime code itself; the architecture guard for plugin imports lives
// alongside it.
package plugins
