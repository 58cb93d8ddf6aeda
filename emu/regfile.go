package emu

// NumRegs is the number of architectural registers.
const NumRegs = 32

// Conventional MIPS register numbers used by the engine and loader.
const (
	RegZero uint8 = 0
	RegV0   uint8 = 2
	RegA0   uint8 = 4
	RegSP   uint8 = 29
	RegRA   uint8 = 31
)

// NoProducer marks a register with no in-flight producer.
const NoProducer = -1

// RenameEntry is one register's slot in a rename-map snapshot.
type RenameEntry struct {
	// Producer is the ROB index of the in-flight producer, NoProducer
	// if the architectural value was current.
	Producer int
	// Seq is the producer's sequence number, used to recognize a
	// recycled ROB slot.
	Seq uint64
}

// RenameSnapshot captures the full rename map at a branch's decode.
type RenameSnapshot [NumRegs]RenameEntry

// RegFile holds the 32 architectural registers together with the rename
// map: for each register, the ROB index of its latest in-flight producer.
// Register 0 ($zero) is hardwired to zero and never renamed.
type RegFile struct {
	vals     [NumRegs]uint64
	producer [NumRegs]int
	seq      [NumRegs]uint64
}

// NewRegFile creates a register file with all registers ready and zero.
func NewRegFile() *RegFile {
	rf := &RegFile{}
	for i := range rf.producer {
		rf.producer[i] = NoProducer
	}
	return rf
}

// Read returns the architectural value of a register.
func (rf *RegFile) Read(reg uint8) uint64 {
	if reg == RegZero || reg >= NumRegs {
		return 0
	}
	return rf.vals[reg]
}

// Write sets the architectural value of a register. Writes to $zero are
// dropped.
func (rf *RegFile) Write(reg uint8, value uint64) {
	if reg == RegZero || reg >= NumRegs {
		return
	}
	rf.vals[reg] = value
}

// Ready reports whether the register's architectural value is current,
// i.e. no in-flight instruction will still write it.
func (rf *RegFile) Ready(reg uint8) bool {
	if reg == RegZero || reg >= NumRegs {
		return true
	}
	return rf.producer[reg] == NoProducer
}

// Producer returns the rename tag of the register's latest in-flight
// producer: its ROB index and sequence number.
func (rf *RegFile) Producer(reg uint8) (int, uint64) {
	if reg == RegZero || reg >= NumRegs {
		return NoProducer, 0
	}
	return rf.producer[reg], rf.seq[reg]
}

// SetProducer records a new in-flight producer for the register,
// clearing its ready flag. Called at decode.
func (rf *RegFile) SetProducer(reg uint8, robIndex int, seq uint64) {
	if reg == RegZero || reg >= NumRegs {
		return
	}
	rf.producer[reg] = robIndex
	rf.seq[reg] = seq
}

// ClearProducer marks the register ready again, but only if the given
// ROB index is still its recorded producer. Called at commit so a
// younger in-flight writer keeps the register busy.
func (rf *RegFile) ClearProducer(reg uint8, robIndex int) {
	if reg == RegZero || reg >= NumRegs {
		return
	}
	if rf.producer[reg] == robIndex {
		rf.producer[reg] = NoProducer
		rf.seq[reg] = 0
	}
}

// ForceProducer overwrites the register's rename entry without the
// match check. Used by squash recovery.
func (rf *RegFile) ForceProducer(reg uint8, robIndex int, seq uint64) {
	if reg == RegZero || reg >= NumRegs {
		return
	}
	rf.producer[reg] = robIndex
	rf.seq[reg] = seq
}

// SnapshotRename captures the current rename map.
func (rf *RegFile) SnapshotRename() RenameSnapshot {
	var snap RenameSnapshot
	for i := 0; i < NumRegs; i++ {
		snap[i] = RenameEntry{Producer: rf.producer[i], Seq: rf.seq[i]}
	}
	return snap
}
