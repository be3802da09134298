// Package confloader loads configuration with koanf and watches the
// configuration file for changes.
//
// Sources, from lowest to highest priority:
//
//  1. Defaults already present in the target struct
//  2. The YAML configuration file
//  3. TIDEKV_* environment variables, with "__" separating levels
//     (TIDEKV_SERVER__RESP__ADDR sets server.resp.addr)
//  4. Overrides, typically command-line flags
//
// Watcher reports debounced changes to watched files so the server can
// call Load again and apply the reloadable part of the result.
package confloader
