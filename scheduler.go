package dsi

// The NDS base owns the CPUs, the event scheduler, IRQ delivery, and the
// platform facade; §1 treats all of it as an external collaborator the
// DSi core is handed at construction time, and §5 describes the scheduling
// and IRQ contract the core relies on. These small interfaces are that
// contract — narrow seams to depend on rather than concrete base types.

// EventID names every event the DSi core schedules against the NDS base's
// event queue (§5, §4.7, §4.8). Re-expressed from the source's string-keyed
// callback registration as a small enum, per §9's note on
// avoiding a coroutine-free but stringly-typed scheduler.
type EventID int

const (
	EventNdmaTimeout EventID = iota
	EventCameraIRQ
	EventCameraTransfer
	EventWifiTimer
	EventSdTransferDone
	EventSoftReset
	EventMainRAMResize
	eventCount
)

// CPU identifies one of the two ARM cores.
type CPU int

const (
	ARM9 CPU = iota
	ARM7
)

// IRQLine names every DSi-added interrupt source (§1, §4).
type IRQLine int

const (
	IRQDSiNDMA0 IRQLine = iota
	IRQDSiNDMA1
	IRQDSiNDMA2
	IRQDSiNDMA3
	IRQ2DSiAES
	IRQ2DSiCamera
	IRQ2DSiBPTWL
	IRQ2DSiI2C
	IRQ2DSiGPIO
	IRQ2DSiSDMMC
	IRQ2DSiSDIO
	IRQDSiNWifi
)

// Scheduler is the NDS base's event queue (§5): handlers register for a
// delay in CPU cycles, optionally periodic, and may cancel themselves.
type Scheduler interface {
	Schedule(id EventID, periodic bool, delayCycles int64, param uint32)
	Cancel(id EventID)
}

// IRQController raises interrupts on a CPU, including the DSi-only IRQ2 bank.
type IRQController interface {
	RaiseIRQ(cpu CPU, line IRQLine)
}

// JITInvalidator is notified on every write to executable memory and every
// NWRAM remap (§4.1, §5).
type JITInvalidator interface {
	InvalidateRange(cpu CPU, region string, addr uint32)
	RemapNWRAM(window string)
}

// Bus lets the DSi core fall through to the base NDS decoder for addresses
// it does not own (§4.1).
type Bus interface {
	Read8(cpu CPU, addr uint32) uint8
	Read16(cpu CPU, addr uint32) uint16
	Read32(cpu CPU, addr uint32) uint32
	Write8(cpu CPU, addr uint32, v uint8)
	Write16(cpu CPU, addr uint32, v uint16)
	Write32(cpu CPU, addr uint32, v uint32)
}

// Platform is the frontend-provided facade for camera frames, LAN
// send/receive, and the wall clock (§1, §5). Camera/LAN hooks must be
// non-blocking.
type Platform interface {
	Now() float64 // wall-clock seconds, monotonic

	CameraFrame(cameraNum int) (yuyv []byte, width, height int, ok bool)
	LANSend(frame []byte) bool
	LANRecv() (frame []byte, ok bool)
}
