// Package target models build targets and their build results.
//
// A Target is an os/arch pair from a fixed set; its artifact is named
// <name>-<os>-<arch>, with ".exe" appended only for Windows.
package target
