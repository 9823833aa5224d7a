//go:build tamago && riscv64

package main

import (
	_ "embed"
)

// The supervisor payload and the build configuration are embedded at build
// time. payload.elf is not tracked, see assets/README.md.

//go:embed assets/payload.elf
var payloadELF []byte

//go:embed assets/build.yaml
var buildYAML []byte
