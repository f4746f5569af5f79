// ABOUTME: Embeds the stage prompt templates into the binary using go:embed
// ABOUTME: Provides promptFS for parsing templates at package init

package agents

import "embed"

//go:embed prompts/*.tmpl
var promptFS embed.FS
