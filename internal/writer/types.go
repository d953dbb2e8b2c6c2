// internal/writer/types.go
package writer

// KeyRegister maps one record key to the first of its two holding registers.
type KeyRegister struct {
	Key     string
	Address uint16
}

// StatusPlan places the status block of one source.
type StatusPlan struct {
	Source     string
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
}

// Plan is the fully-built write plan of the mirror.
type Plan struct {
	Endpoint  string
	UnitID    uint8
	Registers []KeyRegister // sorted by address
	Status    []StatusPlan
}

// endpointClient is the exact contract the writer uses.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}
