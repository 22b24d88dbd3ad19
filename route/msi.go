package route

// x86 MSI message layout.
//
// refs: Intel SDM Vol. 3, 11.11 Message Signalled Interrupts
const (
	msiAddrBase        = 0xfee00000
	msiAddrDestModeBit = 1 << 2
	msiAddrDestShift   = 12
	msiAddrDestMask    = 0xff

	msiDataVectorMask   = 0xff
	msiDataDeliveryShft = 8
	msiDataDeliveryMask = 0x7
	msiDataLevelAssert  = 1 << 14
	msiDataTriggerLevel = 1 << 15
)

// Entry is one gsi of the MSI routing table.
type Entry struct {
	GSI       uint32
	AddressLo uint32
	AddressHi uint32
	Data      uint32
}

// FromMSI decodes an MSI routing entry.
func FromMSI(e Entry) Snapshot {
	apicID := uint64((e.AddressLo >> msiAddrDestShift) & msiAddrDestMask)

	// extended destination id
	apicID |= uint64(e.AddressHi &^ 0xff)

	return Snapshot{
		GSI:    e.GSI,
		Valid:  true,
		Vector: e.Data & msiDataVectorMask,
		APICID: apicID,
		Control: Control{
			Type:           InterruptType((e.Data >> msiDataDeliveryShft) & msiDataDeliveryMask),
			LevelTriggered: e.Data&msiDataTriggerLevel != 0,
			LogicalDest:    e.AddressLo&msiAddrDestModeBit != 0,
		},
	}
}

// MSI encodes s as an MSI message.
func (s Snapshot) MSI() Entry {
	e := Entry{
		GSI:       s.GSI,
		AddressLo: msiAddrBase | uint32(s.APICID&msiAddrDestMask)<<msiAddrDestShift,
		AddressHi: uint32(s.APICID) &^ 0xff,
		Data:      s.Vector&msiDataVectorMask | uint32(s.Control.Type&msiDataDeliveryMask)<<msiDataDeliveryShft,
	}

	if s.Control.LogicalDest {
		e.AddressLo |= msiAddrDestModeBit
	}

	if s.Control.LevelTriggered {
		e.Data |= msiDataTriggerLevel | msiDataLevelAssert
	}

	return e
}
