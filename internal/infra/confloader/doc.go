// Package confloader reads configuration with koanf.
//
// Sources, lowest priority first: the defaults already in the target
// struct, a YAML file, MEMKV_ environment variables and overrides (command
// line flags). FileWatcher reports edits to the file so the server can
// reload what it allows to change at runtime.
package confloader
