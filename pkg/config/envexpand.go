package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in raw YAML bytes.
// Missing variables expand to the empty string; validate() is what
// catches a required field left empty this way.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
