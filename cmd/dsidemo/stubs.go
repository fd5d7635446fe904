package main

import (
	"log"
	"os"

	"github.com/dsicore/dsi"
)

// The types below are a minimal headless stand-in for the NDS base and
// frontend collaborators dsi.New requires (§1 "out of scope, treated as
// external collaborators"). A real frontend supplies the actual CPU
// cores, scheduler, and IRQ controller; this just proves the core boots.

type stderrLogger struct {
	l *log.Logger
}

func newStderrLogger() *stderrLogger {
	return &stderrLogger{l: log.New(os.Stderr, "", log.LstdFlags)}
}

func (s *stderrLogger) Warnf(format string, args ...any)  { s.l.Printf("WARN dsidemo: "+format, args...) }
func (s *stderrLogger) Debugf(format string, args ...any) { s.l.Printf("DEBUG dsidemo: "+format, args...) }

type headlessBus struct{}

func (*headlessBus) Read8(dsi.CPU, uint32) uint8    { return 0 }
func (*headlessBus) Read16(dsi.CPU, uint32) uint16  { return 0 }
func (*headlessBus) Read32(dsi.CPU, uint32) uint32  { return 0 }
func (*headlessBus) Write8(dsi.CPU, uint32, uint8)  {}
func (*headlessBus) Write16(dsi.CPU, uint32, uint16) {}
func (*headlessBus) Write32(dsi.CPU, uint32, uint32) {}

type headlessIRQ struct{}

func (*headlessIRQ) RaiseIRQ(dsi.CPU, dsi.IRQLine) {}

type headlessJIT struct{}

func (*headlessJIT) InvalidateRange(dsi.CPU, string, uint32) {}
func (*headlessJIT) RemapNWRAM(string)                       {}

type headlessScheduler struct{}

func (*headlessScheduler) Schedule(dsi.EventID, bool, int64, uint32) {}
func (*headlessScheduler) Cancel(dsi.EventID)                        {}

type headlessPlatform struct{}

func (*headlessPlatform) Now() float64 { return 0 }
func (*headlessPlatform) CameraFrame(int) ([]byte, int, int, bool) {
	return nil, 0, 0, false
}
func (*headlessPlatform) LANSend([]byte) bool        { return false }
func (*headlessPlatform) LANRecv() ([]byte, bool) { return nil, false }
