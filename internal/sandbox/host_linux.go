//go:build linux

package sandbox

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// landlockABI returns the kernel's Landlock ABI version, or 0 when
// Landlock is unsupported or disabled.
func landlockABI() int {
	v, _, errno := unix.Syscall(unix.SYS_LANDLOCK_CREATE_RULESET, 0, 0, unix.LANDLOCK_CREATE_RULESET_VERSION)
	if errno != 0 {
		return 0
	}
	return int(v)
}

type bpfInsn struct {
	code uint8
	regs uint8
	off  int16
	imm  int32
}

// bpfProgLoadAttr is the BPF_PROG_LOAD prefix of union bpf_attr.
type bpfProgLoadAttr struct {
	progType    uint32
	insnCnt     uint32
	insns       uint64
	license     uint64
	logLevel    uint32
	logSize     uint32
	logBuf      uint64
	kernVersion uint32
	progFlags   uint32
}

// bpfFirewall reports whether the kernel loads BPF_PROG_TYPE_CGROUP_SKB
// programs, which systemd needs for IPAddressAllow= and IPAddressDeny=.
// Without them systemd starts the unit with the address rules dropped.
func bpfFirewall() bool {
	insns := []bpfInsn{
		{code: unix.BPF_ALU64 | unix.BPF_MOV | unix.BPF_K, imm: 1}, // r0 = 1
		{code: unix.BPF_JMP | unix.BPF_EXIT},
	}
	license := []byte("GPL\x00")

	attr := bpfProgLoadAttr{
		progType: unix.BPF_PROG_TYPE_CGROUP_SKB,
		insnCnt:  uint32(len(insns)),
		insns:    uint64(uintptr(unsafe.Pointer(&insns[0]))),
		license:  uint64(uintptr(unsafe.Pointer(&license[0]))),
	}
	fd, _, errno := unix.Syscall(unix.SYS_BPF, unix.BPF_PROG_LOAD, uintptr(unsafe.Pointer(&attr)), unsafe.Sizeof(attr))
	runtime.KeepAlive(insns)
	runtime.KeepAlive(license)
	if errno != 0 {
		return false
	}
	unix.Close(int(fd))
	return true
}
