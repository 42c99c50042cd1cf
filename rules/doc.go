// Package rules is the catalog of built-in finders and rewriters.
//
// Default returns the finders every load runs: calls and global accesses
// that still target a removed platform reference after the swap. User
// rewriters (call redirects, global constants, call traps) and a struct
// field blocklist are loaded from YAML:
//
//	user, err := rules.LoadFile("rules.yaml")
//	set := rules.Default(pm).Append(user)
package rules
