// Package manifests embeds the HCL tool manifests shipped with the binary.
// Files found under --modules-path override these by runner name.
package manifests

import "embed"

// FS holds every *.hcl manifest of this directory.
//
//go:embed *.hcl
var FS embed.FS
