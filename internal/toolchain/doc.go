// Package toolchain invokes the external Go and cargo compilers.
//
// Commands are plain values so the packager can be tested with a fake
// Runner; ExecRunner is the os/exec implementation used by the binaries.
package toolchain
