package types

// External toolchain binaries orchestrated by zisk-dev.
// These are black boxes: zisk-dev only validates, spawns and observes them.
const (
	ToolCargoZisk = "cargo-zisk"
	ToolZiskemu   = "ziskemu"
	ToolCargo     = "cargo"
	ToolRustup    = "rustup"
	ToolMPIRun    = "mpirun"
	ToolMPIExec   = "mpiexec"
)

// KnownTools lists the toolchain binaries probed by doctor, in display order.
func KnownTools() []string {
	return []string{ToolCargoZisk, ToolZiskemu, ToolCargo, ToolRustup, ToolMPIRun}
}
