package kvm

import "fmt"

// Capability is an argument of KVM_CHECK_EXTENSION.
type Capability uint

const (
	CapIRQChip            Capability = 0
	CapHLT                Capability = 1
	CapUserMemory         Capability = 3
	CapSetTSSAddr         Capability = 4
	CapExtCPUID           Capability = 7
	CapNRVCPUs            Capability = 9
	CapNRMemSlots         Capability = 10
	CapPIT                Capability = 11
	CapMPState            Capability = 14
	CapCoalescedMMIO      Capability = 15
	CapIOMMU              Capability = 18
	CapUserNMI            Capability = 22
	CapIRQRouting         Capability = 25
	CapIRQInjectStatus    Capability = 26
	CapIRQFD              Capability = 32
	CapPIT2               Capability = 33
	CapIOEventFD          Capability = 36
	CapSetIdentityMapAddr Capability = 37
	CapHyperV             Capability = 44
	CapMaxVCPUs           Capability = 66
	CapKVMClockCtrl       Capability = 76
	CapSignalMSI          Capability = 77
	CapIRQFDResample      Capability = 82
	CapIOEventFDNoLength  Capability = 100
	CapIOEventFDAnyLength Capability = 122
	CapSplitIRQChip       Capability = 121
	CapX2APICAPI          Capability = 129
	CapMSIDevID           Capability = 131
	CapHyperVSynIC        Capability = 123
)

var capNames = map[Capability]string{
	CapIRQChip:            "CapIRQChip",
	CapHLT:                "CapHLT",
	CapUserMemory:         "CapUserMemory",
	CapSetTSSAddr:         "CapSetTSSAddr",
	CapExtCPUID:           "CapExtCPUID",
	CapNRVCPUs:            "CapNRVCPUs",
	CapNRMemSlots:         "CapNRMemSlots",
	CapPIT:                "CapPIT",
	CapMPState:            "CapMPState",
	CapCoalescedMMIO:      "CapCoalescedMMIO",
	CapIOMMU:              "CapIOMMU",
	CapUserNMI:            "CapUserNMI",
	CapIRQRouting:         "CapIRQRouting",
	CapIRQInjectStatus:    "CapIRQInjectStatus",
	CapIRQFD:              "CapIRQFD",
	CapPIT2:               "CapPIT2",
	CapIOEventFD:          "CapIOEventFD",
	CapSetIdentityMapAddr: "CapSetIdentityMapAddr",
	CapHyperV:             "CapHyperV",
	CapMaxVCPUs:           "CapMaxVCPUs",
	CapKVMClockCtrl:       "CapKVMClockCtrl",
	CapSignalMSI:          "CapSignalMSI",
	CapIRQFDResample:      "CapIRQFDResample",
	CapIOEventFDNoLength:  "CapIOEventFDNoLength",
	CapIOEventFDAnyLength: "CapIOEventFDAnyLength",
	CapSplitIRQChip:       "CapSplitIRQChip",
	CapX2APICAPI:          "CapX2APICAPI",
	CapMSIDevID:           "CapMSIDevID",
	CapHyperVSynIC:        "CapHyperVSynIC",
}

func (c Capability) String() string {
	if s, ok := capNames[c]; ok {
		return s
	}

	return fmt.Sprintf("Capability(%d)", uint(c))
}

// EventCapabilities are the capabilities an irqfd/ioeventfd capable VM
// is expected to report.
var EventCapabilities = []Capability{
	CapIRQChip,
	CapIRQRouting,
	CapIRQFD,
	CapIRQFDResample,
	CapIOEventFD,
	CapIOEventFDNoLength,
	CapIOEventFDAnyLength,
	CapSignalMSI,
	CapMSIDevID,
	CapSplitIRQChip,
	CapX2APICAPI,
	CapHyperVSynIC,
}
