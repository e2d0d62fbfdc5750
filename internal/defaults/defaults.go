// Package defaults provides embedded copies of the example configuration
// and skills contract for the briefer init subcommand.
package defaults

import _ "embed"

//go:embed config.example.yaml
var ConfigYAML []byte

//go:embed skills.md
var SkillsMD []byte
