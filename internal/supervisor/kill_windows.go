//go:build windows

package supervisor

import (
	"fmt"
	"syscall"
	"unsafe"
)

// Windows has no process-group signal equivalent to POSIX's negated-PID
// kill. It is approximated here by (a) sending a console-termination
// event to the child's process group for the graceful stage, and (b)
// enumerating every live descendant via a toolhelp snapshot and
// terminating each one individually for the force stage, since a bare
// TerminateProcess on the parent alone would leave any grandchildren
// (e.g. a container runtime spawned by the child) running.
const (
	processTerminate        = 0x0001
	processQueryInformation = 0x0400
	th32csSnapProcess       = 0x00000002
)

type processEntry32 struct {
	Size              uint32
	CntUsage          uint32
	ProcessID         uint32
	DefaultHeapID     uintptr
	ModuleID          uint32
	CntThreads        uint32
	ParentProcessID   uint32
	PriClassBase      int32
	Flags             uint32
	ExeFile           [syscall.MAX_PATH]uint16
}

var (
	kernel32                   = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess            = kernel32.NewProc("OpenProcess")
	procTerminateProcess       = kernel32.NewProc("TerminateProcess")
	procCloseHandle            = kernel32.NewProc("CloseHandle")
	procCreateToolhelp32Snapshot = kernel32.NewProc("CreateToolhelp32Snapshot")
	procProcess32First         = kernel32.NewProc("Process32FirstW")
	procProcess32Next          = kernel32.NewProc("Process32NextW")
	procGenerateConsoleCtrlEvent = kernel32.NewProc("GenerateConsoleCtrlEvent")
)

// sendGraceful issues CTRL_BREAK_EVENT to the child's console process
// group.
func sendGraceful(pid int) error {
	const ctrlBreakEvent = 1
	ret, _, err := procGenerateConsoleCtrlEvent.Call(uintptr(ctrlBreakEvent), uintptr(pid))
	if ret == 0 {
		return fmt.Errorf("GenerateConsoleCtrlEvent: %w", err)
	}
	return nil
}

// sendForce enumerates every live descendant of pid and terminates the
// whole tree unconditionally.
func sendForce(pid int) error { return terminateTree(pid) }

// ProcessExists reports whether pid refers to a live process.
func ProcessExists(pid int) bool {
	handle, _, _ := procOpenProcess.Call(uintptr(processQueryInformation), 0, uintptr(pid))
	if handle == 0 {
		return false
	}
	procCloseHandle.Call(handle)
	return true
}

// terminateTree kills pid and every descendant discovered via a
// toolhelp snapshot, unconditionally.
func terminateTree(pid int) error {
	for _, descendant := range descendantPIDs(pid) {
		_ = terminateOne(descendant)
	}
	return terminateOne(pid)
}

func terminateOne(pid int) error {
	handle, _, err := procOpenProcess.Call(
		uintptr(processTerminate|processQueryInformation),
		0,
		uintptr(pid),
	)
	if handle == 0 {
		return fmt.Errorf("OpenProcess(%d): %w", pid, err)
	}
	defer procCloseHandle.Call(handle)

	ret, _, err := procTerminateProcess.Call(handle, 1)
	if ret == 0 {
		return fmt.Errorf("TerminateProcess(%d): %w", pid, err)
	}
	return nil
}

// descendantPIDs walks the system process snapshot and returns every
// PID whose parent chain leads back to root, deepest-first so children
// are terminated before their parents.
func descendantPIDs(root int) []int {
	children := map[uint32][]uint32{}

	snap, _, _ := procCreateToolhelp32Snapshot.Call(uintptr(th32csSnapProcess), 0)
	if snap == 0 || snap == ^uintptr(0) {
		return nil
	}
	defer procCloseHandle.Call(snap)

	var entry processEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	ret, _, _ := procProcess32First.Call(snap, uintptr(unsafe.Pointer(&entry)))
	for ret != 0 {
		children[entry.ParentProcessID] = append(children[entry.ParentProcessID], entry.ProcessID)
		ret, _, _ = procProcess32Next.Call(snap, uintptr(unsafe.Pointer(&entry)))
	}

	var out []int
	var walk func(parent uint32)
	walk = func(parent uint32) {
		for _, pid := range children[parent] {
			walk(pid)
			out = append(out, int(pid))
		}
	}
	walk(uint32(root))
	return out
}
