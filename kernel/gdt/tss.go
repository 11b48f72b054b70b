package gdt

// TaskState is the 104-byte amd64 task-state segment. Hardware task
// switching does not exist in long mode but the structure still supplies
// the privileged stack pointers (RSP0-2), the interrupt stack table and
// the I/O permission map base used on privilege transitions. The uint32
// backing array keeps the 4-byte field packing the hardware mandates,
// which Go struct alignment rules would otherwise break.
type TaskState [26]uint32

const (
	tssRSP0Word      = 1
	tssIST1Word      = 9
	tssIOMapBaseWord = 25
)

// SetRSP0 sets the stack pointer used when a trap raises the privilege
// level to ring 0.
func (ts *TaskState) SetRSP0(rsp uint64) {
	ts[tssRSP0Word] = uint32(rsp)
	ts[tssRSP0Word+1] = uint32(rsp >> 32)
}

// RSP0 returns the ring 0 stack pointer.
func (ts *TaskState) RSP0() uint64 {
	return uint64(ts[tssRSP0Word]) | uint64(ts[tssRSP0Word+1])<<32
}

// SetIST sets interrupt stack table slot n (1-7).
func (ts *TaskState) SetIST(n int, rsp uint64) {
	word := tssIST1Word + (n-1)*2
	ts[word] = uint32(rsp)
	ts[word+1] = uint32(rsp >> 32)
}

// IST returns interrupt stack table slot n (1-7).
func (ts *TaskState) IST(n int) uint64 {
	word := tssIST1Word + (n-1)*2
	return uint64(ts[word]) | uint64(ts[word+1])<<32
}

// SetIOMapBase sets the I/O permission map offset. Pointing it at the end
// of the structure disables the map.
func (ts *TaskState) SetIOMapBase(off uint16) {
	ts[tssIOMapBaseWord] = (ts[tssIOMapBaseWord] & 0xFFFF) | uint32(off)<<16
}

// IOMapBase returns the I/O permission map offset.
func (ts *TaskState) IOMapBase() uint16 {
	return uint16(ts[tssIOMapBaseWord] >> 16)
}
